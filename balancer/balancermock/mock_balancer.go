// Hand-written in the shape MockGen emits for
// github.com/stonefire-oss/qrpc-core/balancer (interfaces: SubConn,ClientConn,Picker).

// Package balancermock provides go.uber.org/mock test doubles for the
// balancer package's SubConn/ClientConn/Picker interfaces, used by the
// load-balancer policy tests.
package balancermock

import (
	reflect "reflect"

	gomock "go.uber.org/mock/gomock"

	balancer "github.com/stonefire-oss/qrpc-core/balancer"
	connectivity "github.com/stonefire-oss/qrpc-core/connectivity"
	resolver "github.com/stonefire-oss/qrpc-core/resolver"
)

// MockSubConn is a mock of the SubConn interface.
type MockSubConn struct {
	ctrl     *gomock.Controller
	recorder *MockSubConnMockRecorder
}

type MockSubConnMockRecorder struct {
	mock *MockSubConn
}

func NewMockSubConn(ctrl *gomock.Controller) *MockSubConn {
	mock := &MockSubConn{ctrl: ctrl}
	mock.recorder = &MockSubConnMockRecorder{mock}
	return mock
}

func (m *MockSubConn) EXPECT() *MockSubConnMockRecorder { return m.recorder }

func (m *MockSubConn) Connect() {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "Connect")
}

func (mr *MockSubConnMockRecorder) Connect() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Connect", reflect.TypeOf((*MockSubConn)(nil).Connect))
}

func (m *MockSubConn) UpdateAddresses(addrs []resolver.Address) {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "UpdateAddresses", addrs)
}

func (mr *MockSubConnMockRecorder) UpdateAddresses(addrs interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "UpdateAddresses", reflect.TypeOf((*MockSubConn)(nil).UpdateAddresses), addrs)
}

func (m *MockSubConn) Shutdown() {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "Shutdown")
}

func (mr *MockSubConnMockRecorder) Shutdown() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Shutdown", reflect.TypeOf((*MockSubConn)(nil).Shutdown))
}

func (m *MockSubConn) State() connectivity.State {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "State")
	ret0, _ := ret[0].(connectivity.State)
	return ret0
}

func (mr *MockSubConnMockRecorder) State() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "State", reflect.TypeOf((*MockSubConn)(nil).State))
}

// MockClientConn is a mock of the ClientConn interface.
type MockClientConn struct {
	ctrl     *gomock.Controller
	recorder *MockClientConnMockRecorder
}

type MockClientConnMockRecorder struct {
	mock *MockClientConn
}

func NewMockClientConn(ctrl *gomock.Controller) *MockClientConn {
	mock := &MockClientConn{ctrl: ctrl}
	mock.recorder = &MockClientConnMockRecorder{mock}
	return mock
}

func (m *MockClientConn) EXPECT() *MockClientConnMockRecorder { return m.recorder }

func (m *MockClientConn) NewSubConn(addrs []resolver.Address, opts balancer.NewSubConnOptions) (balancer.SubConn, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "NewSubConn", addrs, opts)
	ret0, _ := ret[0].(balancer.SubConn)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockClientConnMockRecorder) NewSubConn(addrs, opts interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "NewSubConn", reflect.TypeOf((*MockClientConn)(nil).NewSubConn), addrs, opts)
}

func (m *MockClientConn) UpdateState(s balancer.State) {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "UpdateState", s)
}

func (mr *MockClientConnMockRecorder) UpdateState(s interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "UpdateState", reflect.TypeOf((*MockClientConn)(nil).UpdateState), s)
}

func (m *MockClientConn) ResolveNow() {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "ResolveNow")
}

func (mr *MockClientConnMockRecorder) ResolveNow() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ResolveNow", reflect.TypeOf((*MockClientConn)(nil).ResolveNow))
}

// MockPicker is a mock of the Picker interface.
type MockPicker struct {
	ctrl     *gomock.Controller
	recorder *MockPickerMockRecorder
}

type MockPickerMockRecorder struct {
	mock *MockPicker
}

func NewMockPicker(ctrl *gomock.Controller) *MockPicker {
	mock := &MockPicker{ctrl: ctrl}
	mock.recorder = &MockPickerMockRecorder{mock}
	return mock
}

func (m *MockPicker) EXPECT() *MockPickerMockRecorder { return m.recorder }

func (m *MockPicker) Pick(info balancer.PickInfo) balancer.PickResult {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Pick", info)
	ret0, _ := ret[0].(balancer.PickResult)
	return ret0
}

func (mr *MockPickerMockRecorder) Pick(info interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Pick", reflect.TypeOf((*MockPicker)(nil).Pick), info)
}
