// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package merr

import (
	"context"
	"os"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/suite"
)

type ErrSuite struct {
	suite.Suite
}

func (s *ErrSuite) TestCode() {
	err := WrapErrSessionNotFound("abc")
	err = errors.Wrap(err, "failed to find session")
	s.ErrorIs(err, ErrSessionNotFound)
	s.Equal(Code(ErrSessionNotFound), Code(err))
	s.Equal(TimeoutCode, Code(context.DeadlineExceeded))
	s.Equal(CanceledCode, Code(context.Canceled))
	s.Equal(errUnexpected.errCode, Code(errUnexpected))
	s.Equal(errUnexpected.errCode, Code(errors.New("plain")))
	s.Equal(int32(0), Code(nil))

	sameCodeErr := newCodedError("new error", ErrSessionNotFound.errCode, false)
	s.True(sameCodeErr.Is(ErrSessionNotFound))
}

func (s *ErrSuite) TestWrap() {
	s.ErrorIs(WrapErrServiceInternal("stop in progress", "restart"), ErrServiceInternal)

	s.ErrorIs(WrapErrServerNotStarted("127.0.0.1:0", "stop"), ErrServerNotStarted)
	s.ErrorIs(WrapErrPortInUse(2222, "pre-flight"), ErrPortInUse)
	s.Contains(WrapErrPortInUse(2222).Error(), "port=2222")

	s.ErrorIs(WrapErrSessionNotFound(1, "multicast"), ErrSessionNotFound)
	s.ErrorIs(WrapErrSessionDuplicated(1), ErrSessionDuplicated)

	err := WrapErrCertificateInvalid("server.pfx", errors.New("bad password"))
	s.ErrorIs(err, ErrCertificateInvalid)
	s.Contains(err.Error(), "source=server.pfx")
	s.Contains(err.Error(), "bad password")

	s.ErrorIs(WrapErrIoFailed("config.yaml", os.ErrNotExist), ErrIoFailed)
	s.NoError(WrapErrIoFailed("config.yaml", nil))

	s.ErrorIs(WrapErrParameterInvalid(8192, -1, "receive buffer"), ErrParameterInvalid)
	s.ErrorIs(WrapErrParameterInvalidMsg("bad %s", "address"), ErrParameterInvalid)
	s.ErrorIs(WrapErrParameterMissing("address"), ErrParameterMissing)
}

func (s *ErrSuite) TestRetriable() {
	s.True(IsRetryableErr(WrapErrPortInUse(1)))
	s.True(IsRetryableErr(errors.Wrap(WrapErrPortInUse(1), "start")))
	s.False(IsRetryableErr(WrapErrSessionNotFound(1)))
	s.False(IsRetryableErr(errors.New("plain")))
	s.True(IsCanceledOrTimeout(errors.Wrap(context.Canceled, "ctx")))
	s.False(IsCanceledOrTimeout(ErrIoFailed))
}

func (s *ErrSuite) TestDetail() {
	err := WrapErrSessionNotFound("abc")
	var coded codedError
	s.True(errors.As(err, &coded))
	s.Equal(coded.Error(), coded.Detail())
	s.Contains(coded.Detail(), "session=abc")
}

func (s *ErrSuite) TestCombine() {
	var (
		errFirst  = errors.New("first")
		errSecond = errors.New("second")
		errThird  = errors.New("third")
	)

	err := Combine(errFirst, errSecond)
	s.ErrorIs(err, errFirst)
	s.ErrorIs(err, errSecond)
	s.NotErrorIs(err, errThird)

	err = Combine(errFirst, nil, errSecond, errThird)
	s.ErrorIs(err, errThird)
	s.Contains(err.Error(), "first")

	s.NoError(Combine(nil, nil))
	s.Equal("first", Combine(errFirst).Error())
}

func TestErrors(t *testing.T) {
	suite.Run(t, new(ErrSuite))
}
