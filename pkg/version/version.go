// Package version 记录二进制的版本信息，构建时通过 -ldflags 注入。
//
//	go build -ldflags "-X github.com/lk2023060901/sslserver-go/pkg/version.version=1.2.0"
package version

import (
	"fmt"
	"runtime"

	"github.com/blang/semver/v4"
	"github.com/cockroachdb/errors"
)

var (
	version   = "0.1.0"
	gitCommit = "unknown"
	buildTime = "unknown"
)

var defaultVersion = semver.MustParse("0.0.0")

// Info 为版本信息。
type Info struct {
	Version   semver.Version `json:"version"`
	GitCommit string         `json:"gitCommit"`
	BuildTime string         `json:"buildTime"`
	GoVersion string         `json:"goVersion"`
}

// Get 返回当前二进制的版本信息，注入的版本号无法解析时使用 0.0.0。
func Get() Info {
	v, err := semver.ParseTolerant(version)
	if err != nil {
		v = defaultVersion
	}
	return Info{
		Version:   v,
		GitCommit: gitCommit,
		BuildTime: buildTime,
		GoVersion: runtime.Version(),
	}
}

func (i Info) String() string {
	return fmt.Sprintf("%s (commit %s, built %s, %s)", i.Version, i.GitCommit, i.BuildTime, i.GoVersion)
}

// Satisfies 判断版本是否落在 expr 描述的范围内，例如 ">=1.0.0 <2.0.0"。
func (i Info) Satisfies(expr string) (bool, error) {
	r, err := semver.ParseRange(expr)
	if err != nil {
		return false, errors.Wrapf(err, "parse version range %q", expr)
	}
	return r(i.Version), nil
}
