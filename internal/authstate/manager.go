// Package authstate はクライアント実行環境ごとの認証状態を保持する。
//
// Managerはセッションストアのクライアントを1つ持ち、起動時の1回の問い合わせで
// 状態を初期化した後は、ストアからの変化通知だけで状態を更新する。
// 状態を変更するのはManagerのみで、他のコンポーネントはSubscribeで観測する。
package authstate

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/hitoshi/barberadmin/internal/model"
	"github.com/hitoshi/barberadmin/internal/storeclient"
)

// 既定のルート。
const (
	DefaultLandingRoute = "/app/barbershops"
	DefaultLoginRoute   = "/login"
)

// ErrNotStarted はStart前にサインイン操作を呼んだ場合のエラー。
var ErrNotStarted = errors.New("auth state manager is not started")

// Store はManagerが使用するセッションストアのクライアント。
// storeclient.Clientが実装する。
type Store interface {
	GetSession(ctx context.Context) (*model.Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error)
	SignOut(ctx context.Context) error
	OnAuthStateChange(handler func(model.AuthEvent)) storeclient.Subscription
}

// Factory はStoreを生成する。設定不足の場合はエラーを返す。
type Factory func() (Store, error)

// Navigator はルート遷移を行う。
type Navigator interface {
	Navigate(route string)
}

// Options はManagerの設定。空の項目は既定値を使用する。
type Options struct {
	LandingRoute string
	LoginRoute   string
}

// Credentials はパスワードサインインの入力。
type Credentials struct {
	Email    string
	Password string
}

// Phase は状態の段階。
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseLoading
	PhaseAuthenticated
	PhaseAnonymous
	PhaseErrored
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseLoading:
		return "loading"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseAnonymous:
		return "anonymous"
	case PhaseErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// State は観測可能な認証状態。
type State struct {
	User    *model.User
	Loading bool
	Err     error
	Phase   Phase
}

// Manager は認証状態のセル。
type Manager struct {
	store Store
	nav   Navigator
	opts  Options

	mu        sync.Mutex
	state     State
	observers map[int]func(State)
	nextID    int
	sub       storeclient.Subscription
	started   bool
	closed    bool
}

// New はManagerを生成する。factoryが失敗した場合、Managerは終端のErrored状態となり
// 以後Storeの生成を再試行しない。
func New(factory Factory, nav Navigator, opts Options) *Manager {
	if opts.LandingRoute == "" {
		opts.LandingRoute = DefaultLandingRoute
	}
	if opts.LoginRoute == "" {
		opts.LoginRoute = DefaultLoginRoute
	}

	m := &Manager{
		nav:       nav,
		opts:      opts,
		observers: make(map[int]func(State)),
	}

	store, err := factory()
	if err != nil {
		slog.Error("session store client is unavailable", slog.String("error", err.Error()))
		m.state = State{Phase: PhaseErrored, Err: err}
		return m
	}
	m.store = store
	return m
}

// Start はセッションを1回問い合わせて状態を初期化し、変化通知の購読を開始する。
// 問い合わせに失敗した場合はErrored状態となる。2回目以降の呼び出しは何もしない。
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state.Phase == PhaseErrored {
		err := m.state.Err
		m.mu.Unlock()
		return err
	}
	if m.started || m.closed {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.mu.Unlock()

	m.update(func(s *State) {
		s.Phase = PhaseLoading
		s.Loading = true
	})

	// 1. 初期セッションを取得
	session, err := m.store.GetSession(ctx)
	if err != nil {
		slog.Error("initial session probe failed", slog.String("error", err.Error()))
		m.update(func(s *State) {
			*s = State{Phase: PhaseErrored, Err: err}
		})
		return err
	}
	m.update(func(s *State) {
		*s = identityState(session)
	})

	// 2. 変化通知を購読
	sub := m.store.OnAuthStateChange(m.handle)
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		sub.Unsubscribe()
		return nil
	}
	m.sub = sub
	m.mu.Unlock()
	return nil
}

// Current は現在の状態を返す。
func (m *Manager) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SignIn はサインインし、成功するとランディングルートへ遷移する。
// 失敗した場合は認証情報を消去してエラーを記録し、遷移しない。
func (m *Manager) SignIn(ctx context.Context, creds Credentials) error {
	store, err := m.ready()
	if err != nil {
		return err
	}

	m.update(func(s *State) {
		s.Loading = true
	})

	session, err := store.SignInWithPassword(ctx, creds.Email, creds.Password)
	if err != nil {
		m.update(func(s *State) {
			*s = State{Phase: PhaseAnonymous, Err: err}
		})
		return err
	}

	m.update(func(s *State) {
		*s = identityState(session)
	})
	m.navigate(m.opts.LandingRoute)
	return nil
}

// SignOut はサインアウトを要求する。状態の消去とログイン画面への遷移は
// SIGNED_OUT通知の受信時に行う。
func (m *Manager) SignOut(ctx context.Context) error {
	store, err := m.ready()
	if err != nil {
		return err
	}

	if err := store.SignOut(ctx); err != nil {
		m.update(func(s *State) {
			s.Err = err
		})
		return err
	}
	return nil
}

// Subscribe は状態変化の観測者を登録し、登録解除関数を返す。
// 観測者は状態を変更したゴルーチンから呼ばれる。
func (m *Manager) Subscribe(fn func(State)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.observers[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.observers, id)
		})
	}
}

// Close はストアの変化通知の購読を解除する。
func (m *Manager) Close() {
	m.mu.Lock()
	sub := m.sub
	m.sub = nil
	m.closed = true
	m.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
}

// handle はストアの変化通知を状態へ反映する。
// 全ての通知は認証情報を上書きしてloadingを解除し、SIGNED_OUTはログイン画面へ遷移する。
func (m *Manager) handle(event model.AuthEvent) {
	if m.Current().Phase == PhaseErrored {
		return
	}

	m.update(func(s *State) {
		next := identityState(event.Session)
		if event.Type != model.AuthEventSignedIn {
			next.Err = s.Err
		}
		*s = next
	})

	if event.Type == model.AuthEventSignedOut {
		m.navigate(m.opts.LoginRoute)
	}
}

// ready はStart済みのStoreを返す。
func (m *Manager) ready() (Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Phase == PhaseErrored {
		return nil, m.state.Err
	}
	if !m.started {
		return nil, ErrNotStarted
	}
	return m.store, nil
}

// update は状態を変更し、観測者へ登録順に通知する。
func (m *Manager) update(fn func(*State)) {
	m.mu.Lock()
	fn(&m.state)
	state := m.state
	observers := make([]func(State), 0, len(m.observers))
	for id := 0; id < m.nextID; id++ {
		if o, ok := m.observers[id]; ok {
			observers = append(observers, o)
		}
	}
	m.mu.Unlock()

	for _, o := range observers {
		o(state)
	}
}

func (m *Manager) navigate(route string) {
	if m.nav != nil {
		m.nav.Navigate(route)
	}
}

// identityState はセッションから解決済みの状態を作る。
func identityState(session *model.Session) State {
	if session == nil || session.User == nil {
		return State{Phase: PhaseAnonymous}
	}
	return State{Phase: PhaseAuthenticated, User: session.User}
}
