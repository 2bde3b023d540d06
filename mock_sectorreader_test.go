// Hand-written in the shape mockgen produces for the sectorReader interface.

package mscfb

import (
	"reflect"

	"github.com/golang/mock/gomock"
)

// MockSectorReader is a hand-written gomock mock of the unexported
// sectorReader interface, kept in this _test.go file since the interface
// itself has no reason to be exported just to be mocked.
type MockSectorReader struct {
	ctrl     *gomock.Controller
	recorder *MockSectorReaderMockRecorder
}

type MockSectorReaderMockRecorder struct {
	mock *MockSectorReader
}

func NewMockSectorReader(ctrl *gomock.Controller) *MockSectorReader {
	m := &MockSectorReader{ctrl: ctrl}
	m.recorder = &MockSectorReaderMockRecorder{m}
	return m
}

func (m *MockSectorReader) EXPECT() *MockSectorReaderMockRecorder {
	return m.recorder
}

func (m *MockSectorReader) ReadAt(p []byte, off int64) (int, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ReadAt", p, off)
	ret0, _ := ret[0].(int)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockSectorReaderMockRecorder) ReadAt(p, off interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ReadAt", reflect.TypeOf((*MockSectorReader)(nil).ReadAt), p, off)
}
