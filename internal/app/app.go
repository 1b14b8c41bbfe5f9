// Package app is the application root. It owns the session, history and
// market stores for one run and the backend client that feeds them.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/wecanfarm/wecanfarm/internal/api"
	"github.com/wecanfarm/wecanfarm/internal/history"
	"github.com/wecanfarm/wecanfarm/internal/imaging"
	"github.com/wecanfarm/wecanfarm/internal/market"
	"github.com/wecanfarm/wecanfarm/internal/session"
)

// ErrAnalysisInFlight is returned when an analysis is started while another
// one is still running.
var ErrAnalysisInFlight = errors.New("an analysis is already in progress")

// RecentCount is how many records the dashboard shows.
const RecentCount = 5

// Options configures New.
type Options struct {
	Client          *api.Client
	Logger          zerolog.Logger
	HistoryCapacity int
	SeedMarket      bool
	Now             func() time.Time
}

// App wires the stores to the backend client.
type App struct {
	client   *api.Client
	session  *session.Store
	history  *history.Store
	market   *market.Registry
	log      zerolog.Logger
	analysis *semaphore.Weighted
}

// New builds an App with empty stores. The market is seeded with the
// sample listings when opts.SeedMarket is set.
func New(opts Options) (*App, error) {
	if opts.Client == nil {
		return nil, errors.New("app: client is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	var seed []market.Listing
	if opts.SeedMarket {
		seed = market.SeedListings(now())
	}

	a := &App{
		client:  opts.Client,
		session: session.NewStore(),
		history: history.NewStore(
			history.WithCapacity(opts.HistoryCapacity),
			history.WithClock(now),
			history.WithLogger(opts.Logger),
			history.WithImageEncoder(func(b []byte) ([]byte, error) {
				return imaging.Recompress(b, imaging.HistoryQuality)
			}),
		),
		market:   market.NewRegistry(seed...),
		log:      opts.Logger,
		analysis: semaphore.NewWeighted(1),
	}
	return a, nil
}

func (a *App) Session() *session.Store { return a.session }
func (a *App) History() *history.Store { return a.history }
func (a *App) Market() *market.Registry { return a.market }
func (a *App) Client() *api.Client { return a.client }

// Login authenticates and replaces the current session.
func (a *App) Login(ctx context.Context, username, password string) (session.UserInfo, error) {
	res, err := a.client.Login(ctx, api.LoginRequest{
		Username: strings.TrimSpace(username),
		Password: password,
	})
	if err != nil {
		return session.UserInfo{}, err
	}
	user := res.User()
	if err := a.session.Set(res.Token, user); err != nil {
		return session.UserInfo{}, fmt.Errorf("store session: %w", err)
	}
	a.log.Info().Int("user_id", user.ID).Str("role", string(user.Role)).
		Str("token", session.Redact(res.Token)).Msg("logged in")
	return user, nil
}

// Logout forgets the current session. History and listings are kept.
func (a *App) Logout() {
	if u, ok := a.session.User(); ok {
		a.log.Info().Int("user_id", u.ID).Msg("logged out")
	}
	a.session.Clear()
}

// Signup creates an account. It does not log in.
func (a *App) Signup(ctx context.Context, req api.RegisterRequest) (api.RegisterResult, error) {
	res, err := a.client.Register(ctx, req)
	if err != nil {
		return api.RegisterResult{}, err
	}
	a.log.Info().Int("user_id", res.UserID).Str("username", req.Username).Msg("account created")
	return res, nil
}

// Outcome is the result of one analysis.
type Outcome struct {
	Source   string
	Response api.DetectionResponse
	Records  []history.Record
	// Empty is set when the service found nothing. It is not an error.
	Empty bool
}

// Healthy counts the healthy detections of the outcome.
func (o Outcome) Healthy() int {
	n := 0
	for _, d := range o.Response.Detections {
		if history.IsHealthy(d.DiseaseStatus) {
			n++
		}
	}
	return n
}

// Analyze uploads image for the signed-in user and records the detections.
// Only one analysis runs at a time; a second call fails with
// ErrAnalysisInFlight instead of queueing.
func (a *App) Analyze(ctx context.Context, image []byte) (Outcome, error) {
	snap, err := a.session.Current()
	if err != nil {
		return Outcome{}, &api.Error{Kind: api.KindUnauthenticated, Op: "analyze", Message: "login required", Err: err}
	}
	if !a.analysis.TryAcquire(1) {
		return Outcome{}, ErrAnalysisInFlight
	}
	defer a.analysis.Release(1)

	resp, err := a.client.Analyze(ctx, image, snap.Token)
	if err != nil {
		a.log.Warn().Err(err).Int("user_id", snap.User.ID).Msg("analysis failed")
		return Outcome{}, err
	}

	out := Outcome{Response: resp, Empty: len(resp.Detections) == 0}
	if out.Empty {
		a.log.Info().Int("user_id", snap.User.ID).Msg("no detections")
		return out, nil
	}
	out.Records = a.history.Record(snap.User.ID, resp, image)
	return out, nil
}

// AnalyzeFile prepares the photo at path and analyzes it.
func (a *App) AnalyzeFile(ctx context.Context, path string) (Outcome, error) {
	if !a.session.IsAuthenticated() {
		return Outcome{Source: path}, &api.Error{Kind: api.KindUnauthenticated, Op: "analyze", Message: "login required", Err: session.ErrNoSession}
	}
	data, err := imaging.Load(path)
	if err != nil {
		return Outcome{Source: path}, fmt.Errorf("prepare image: %w", err)
	}
	out, err := a.Analyze(ctx, data)
	out.Source = path
	return out, err
}

// Dashboard is the farmer home screen data.
type Dashboard struct {
	User    session.UserInfo
	Summary history.Summary
	Recent  []history.Record
}

// Dashboard summarizes the signed-in user's history.
func (a *App) Dashboard() (Dashboard, error) {
	snap, err := a.session.Current()
	if err != nil {
		return Dashboard{}, err
	}
	return Dashboard{
		User:    snap.User,
		Summary: a.history.Summarize(snap.User.ID),
		Recent:  a.history.Recent(snap.User.ID, RecentCount),
	}, nil
}

// RegisterListing adds a product sold by the signed-in user, or by the
// default seller when nobody is signed in.
func (a *App) RegisterListing(reg market.Registration) (market.Listing, error) {
	if err := reg.Validate(); err != nil {
		var vErr *market.ValidationError
		if errors.As(err, &vErr) {
			return market.Listing{}, api.NewValidationError("register product", vErr.Fields)
		}
		return market.Listing{}, err
	}
	seller := ""
	if u, ok := a.session.User(); ok {
		seller = u.DisplayName
	}
	l, err := a.market.Register(reg, seller)
	if err != nil {
		return market.Listing{}, err
	}
	a.log.Info().Str("listing_id", l.ID).Str("crop", l.CropType).Msg("product registered")
	return l, nil
}
