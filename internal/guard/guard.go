// Package guard は保護ルートへの到達を有効なセッションを持つ場合に限定する。
//
// クライアント側のGuardはauthstate.Managerの状態から表示可否を毎回計算し、
// サーバー側のRequirePageはページルートへのリクエストをCookieのセッションで判定する。
package guard

import (
	"strings"
	"sync"

	"github.com/hitoshi/barberadmin/internal/authstate"
)

// Outcome はガードの判定結果の種別。
type Outcome int

const (
	// Placeholder は認証状態の解決待ち。
	Placeholder Outcome = iota
	// Redirect はログイン画面への遷移。
	Redirect
	// Render は保護された内容の表示。
	Render
)

func (o Outcome) String() string {
	switch o {
	case Placeholder:
		return "placeholder"
	case Redirect:
		return "redirect"
	case Render:
		return "render"
	default:
		return "unknown"
	}
}

// Decision はガードの判定。RedirectのときのみRouteを持つ。
type Decision struct {
	Outcome Outcome
	Route   string
}

// Decide は認証状態から判定を返す。
// 読み込み中は認証情報に関わらずPlaceholder、解決済みで認証情報がなければ
// loginRouteへのRedirect、認証情報があればRenderとなる。
func Decide(state authstate.State, loginRoute string) Decision {
	switch {
	case state.Loading, state.Phase == authstate.PhaseUninitialized, state.Phase == authstate.PhaseLoading:
		return Decision{Outcome: Placeholder}
	case state.User == nil:
		return Decision{Outcome: Redirect, Route: loginRoute}
	default:
		return Decision{Outcome: Render}
	}
}

// StateSource はGuardが観測する認証状態。authstate.Managerが実装する。
type StateSource interface {
	Current() authstate.State
	Subscribe(fn func(authstate.State)) (unsubscribe func())
}

// Router は現在のルートを知るNavigator。authstate.Historyが実装する。
type Router interface {
	authstate.Navigator
	CurrentRoute() string
}

// Guard は状態変化のたびに判定を再計算し、保護ルートで認証情報を失った場合に
// ログイン画面へ遷移させる。
type Guard struct {
	router     Router
	loginRoute string
	prefix     string

	mu          sync.Mutex
	decision    Decision
	unsubscribe func()
}

// New はGuardを生成し、sourceの購読を開始する。
// protectedPrefixで始まるルートを保護対象とする。
func New(source StateSource, router Router, loginRoute, protectedPrefix string) *Guard {
	if loginRoute == "" {
		loginRoute = authstate.DefaultLoginRoute
	}
	g := &Guard{
		router:     router,
		loginRoute: loginRoute,
		prefix:     protectedPrefix,
	}
	g.unsubscribe = source.Subscribe(g.apply)
	g.apply(source.Current())
	return g
}

// Decision は最新の判定を返す。
func (g *Guard) Decision() Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.decision
}

// Close は状態の購読を解除する。
func (g *Guard) Close() {
	g.unsubscribe()
}

func (g *Guard) apply(state authstate.State) {
	decision := Decide(state, g.loginRoute)

	g.mu.Lock()
	g.decision = decision
	g.mu.Unlock()

	if decision.Outcome == Redirect && g.protects(g.router.CurrentRoute()) {
		g.router.Navigate(decision.Route)
	}
}

// protects はルートが保護対象かを返す。
func (g *Guard) protects(route string) bool {
	return route == g.prefix || strings.HasPrefix(route, strings.TrimSuffix(g.prefix, "/")+"/")
}
