// Package guard decides whether a route's protected content may be shown.
//
// A Guard follows one navigation at a time. Each navigation starts in
// StateChecking and settles synchronously from the token store; the guard
// then re-settles whenever the store reports a login in this process or a
// credential change made elsewhere. Unauthenticated visitors are sent to the
// login route through a Navigator.
package guard

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/aussiebroadwan/consoleauth/pkg/authz"
	"github.com/aussiebroadwan/consoleauth/pkg/tokenstore"
)

type State int

const (
	StateChecking State = iota
	StateAuthenticated
	StateUnauthenticated
	// StateForbidden means signed in but refused by the route's policy.
	StateForbidden
)

func (s State) String() string {
	switch s {
	case StateChecking:
		return "checking"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateForbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// Frame is what the protected surface should draw.
type Frame int

const (
	FrameLoading Frame = iota
	FrameContent
	FrameEmpty
)

func (f Frame) String() string {
	switch f {
	case FrameLoading:
		return "loading"
	case FrameContent:
		return "content"
	default:
		return "empty"
	}
}

// Navigator performs client-side redirects.
type Navigator interface {
	Replace(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Replace(path string) { f(path) }

// Rule attaches an authorization policy to a route pattern.
type Rule struct {
	Pattern string
	Policy  authz.Policy
}

// Reason says what caused an evaluation.
type Reason string

const (
	ReasonNavigate Reason = "navigate"
	ReasonLogin    Reason = "login"
	ReasonStorage  Reason = "storage"
	ReasonPoll     Reason = "poll"
)

// Transition is reported for every state change.
type Transition struct {
	From   State
	To     State
	Path   string
	Reason Reason
}

type Options struct {
	// PublicRoutes bypass the check entirely. Defaults to DefaultPublicRoutes.
	PublicRoutes []string

	// LoginRoute receives unauthenticated visitors. Defaults to "/login".
	LoginRoute string

	// ForbiddenRoute, when set, receives visitors refused by a Rule.
	ForbiddenRoute string

	// Protected lists per-route policies; the first matching pattern wins.
	Protected []Rule
	Evaluator authz.Evaluator

	// PollInterval re-checks the store on a timer in Run. Zero disables it;
	// store notifications are the primary mechanism.
	PollInterval time.Duration

	Logger *slog.Logger
}

type compiledRule struct {
	routes Routes
	policy authz.Policy
}

// Guard is safe for concurrent use.
type Guard struct {
	store  tokenstore.Store
	nav    Navigator
	opts   Options
	public Routes
	rules  []compiledRule

	mu    sync.Mutex
	path  string
	state State

	obsMu     sync.Mutex
	nextObs   int
	observers map[int]func(Transition)
}

// New returns a guard in StateChecking with no current path.
func New(store tokenstore.Store, nav Navigator, opts Options) *Guard {
	if opts.PublicRoutes == nil {
		opts.PublicRoutes = DefaultPublicRoutes
	}
	if opts.LoginRoute == "" {
		opts.LoginRoute = "/login"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	rules := make([]compiledRule, 0, len(opts.Protected))
	for _, r := range opts.Protected {
		rules = append(rules, compiledRule{routes: NewRoutes(r.Pattern), policy: r.Policy})
	}

	// The login and forbidden pages stay reachable whatever PublicRoutes
	// says, or a redirect would land on a guarded page.
	public := append([]string{normalize(opts.LoginRoute)}, opts.PublicRoutes...)
	if opts.ForbiddenRoute != "" {
		public = append(public, normalize(opts.ForbiddenRoute))
	}

	return &Guard{
		store:     store,
		nav:       nav,
		opts:      opts,
		public:    NewRoutes(public...),
		rules:     rules,
		observers: make(map[int]func(Transition)),
	}
}

// State returns the current state.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Path returns the route being guarded.
func (g *Guard) Path() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.path
}

// Render maps the current state to what may be drawn. Protected content
// only ever renders in StateAuthenticated.
func (g *Guard) Render() Frame {
	switch g.State() {
	case StateAuthenticated:
		return FrameContent
	case StateChecking:
		return FrameLoading
	default:
		return FrameEmpty
	}
}

// IsPublic reports whether path bypasses the guard.
func (g *Guard) IsPublic(path string) bool {
	return g.public.Match(path)
}

// Navigate moves the guard to path and settles it before returning.
func (g *Guard) Navigate(path string) State {
	if path == "" {
		path = "/"
	}

	g.mu.Lock()
	var fired []Transition
	if g.state != StateChecking {
		fired = append(fired, Transition{From: g.state, To: StateChecking, Path: path, Reason: ReasonNavigate})
	}
	g.path = path
	g.state = StateChecking
	g.mu.Unlock()

	g.emit(fired)
	return g.evaluate(ReasonNavigate)
}

// Attach subscribes the guard to store notifications. The returned func
// detaches it.
func (g *Guard) Attach() (detach func()) {
	return g.store.Subscribe(func(ev tokenstore.Event) {
		switch ev.Kind {
		case tokenstore.EventLoginSucceeded:
			g.evaluate(ReasonLogin)
		case tokenstore.EventStorage:
			if ev.Key.IsCredential() {
				g.evaluate(ReasonStorage)
			}
		}
	})
}

// Run attaches the guard and, if configured, polls the store until ctx is
// done.
func (g *Guard) Run(ctx context.Context) error {
	detach := g.Attach()
	defer detach()

	var tick <-chan time.Time
	if g.opts.PollInterval > 0 {
		t := time.NewTicker(g.opts.PollInterval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
			g.evaluate(ReasonPoll)
		}
	}
}

// OnTransition registers fn for state changes. Callbacks run on the
// goroutine that caused the change.
func (g *Guard) OnTransition(fn func(Transition)) (cancel func()) {
	g.obsMu.Lock()
	id := g.nextObs
	g.nextObs++
	g.observers[id] = fn
	g.obsMu.Unlock()

	return func() {
		g.obsMu.Lock()
		delete(g.observers, id)
		g.obsMu.Unlock()
	}
}

// evaluate settles the current path and performs any redirect outside the
// lock, so a Navigator may call back into the guard.
func (g *Guard) evaluate(reason Reason) State {
	g.mu.Lock()
	path := g.path
	if path == "" {
		st := g.state
		g.mu.Unlock()
		return st
	}

	prev := g.state
	next := g.decide(path)
	g.state = next
	g.mu.Unlock()

	if prev == next {
		return next
	}

	g.opts.Logger.Debug("guard transition", "path", path, "from", prev, "to", next, "reason", reason)
	g.emit([]Transition{{From: prev, To: next, Path: path, Reason: reason}})

	switch next {
	case StateUnauthenticated:
		g.nav.Replace(g.loginTarget(path))
	case StateForbidden:
		if g.opts.ForbiddenRoute != "" {
			g.nav.Replace(g.opts.ForbiddenRoute)
		}
	}
	return next
}

// decide computes the settled state for path. Public routes never touch
// the store.
func (g *Guard) decide(path string) State {
	if g.public.Match(path) {
		return StateAuthenticated
	}

	cred, ok := g.store.Read()
	if !ok {
		return StateUnauthenticated
	}

	for _, r := range g.rules {
		if r.routes.Match(path) {
			subject := authz.Subject{Role: cred.Profile.Role, Authorities: cred.Profile.Authorities}
			if !g.opts.Evaluator.Allows(r.policy, subject) {
				return StateForbidden
			}
			break
		}
	}
	return StateAuthenticated
}

func (g *Guard) loginTarget(from string) string {
	if from == "" || from == "/" {
		return g.opts.LoginRoute
	}
	return g.opts.LoginRoute + "?from=" + url.QueryEscape(from)
}

func (g *Guard) emit(ts []Transition) {
	if len(ts) == 0 {
		return
	}

	g.obsMu.Lock()
	fns := make([]func(Transition), 0, len(g.observers))
	for _, fn := range g.observers {
		fns = append(fns, fn)
	}
	g.obsMu.Unlock()

	for _, t := range ts {
		for _, fn := range fns {
			fn(t)
		}
	}
}
