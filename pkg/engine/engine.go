// ChefMate - AI recipe recommendation agent
// License: MIT
//
// Copyright (c) 2026 ChefMate contributors

package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/linqiu/chefmate/pkg/fridge"
	"github.com/linqiu/chefmate/pkg/preference"
	"github.com/linqiu/chefmate/pkg/providers"
	"github.com/linqiu/chefmate/pkg/recipe"
	"github.com/linqiu/chefmate/pkg/session"
)

const (
	defaultRetrieveK       = 5
	defaultTopN            = 3
	defaultGenerateTimeout = 60 * time.Second

	// degradedReply is returned when the text generator times out; the
	// turn still completes instead of failing the whole request.
	degradedReply = "抱歉，小厨神暂时走神了，请稍后再试。"
)

// Recommendation pairs a retrieved recipe with its inventory
// compatibility, derived fresh per request.
type Recommendation struct {
	Recipe        recipe.Recipe              `json:"recipe"`
	Compatibility fridge.CompatibilityResult `json:"compatibility"`
}

// Options wires an Engine together. Index, Preferences and Fridges are
// required; Generator and Summarizer are optional (Chat is unavailable
// without a generator).
type Options struct {
	Index       *recipe.Index
	Preferences preference.Store
	Fridges     *fridge.Registry
	Generator   providers.TextGenerator
	Summarizer  *session.Summarizer
	Logger      zerolog.Logger

	WindowSize      int
	RetrieveK       int
	TopN            int
	GenerateTimeout time.Duration
}

// Engine orchestrates recommendations, memory and conversation for all
// users. Per-user mutation sequences are serialized by the tenant lock;
// the shared recipe corpus is read concurrently.
type Engine struct {
	index      *recipe.Index
	prefs      preference.Store
	fridges    *fridge.Registry
	generator  providers.TextGenerator
	summarizer *session.Summarizer
	tenants    *tenants
	log        zerolog.Logger

	retrieveK  int
	topN       int
	genTimeout time.Duration
}

func New(opts Options) (*Engine, error) {
	if opts.Index == nil {
		return nil, fmt.Errorf("recipe index is required")
	}
	if opts.Preferences == nil {
		return nil, fmt.Errorf("preference store is required")
	}
	if opts.Fridges == nil {
		return nil, fmt.Errorf("fridge registry is required")
	}
	if opts.RetrieveK <= 0 {
		opts.RetrieveK = defaultRetrieveK
	}
	if opts.TopN <= 0 {
		opts.TopN = defaultTopN
	}
	if opts.GenerateTimeout <= 0 {
		opts.GenerateTimeout = defaultGenerateTimeout
	}

	return &Engine{
		index:      opts.Index,
		prefs:      opts.Preferences,
		fridges:    opts.Fridges,
		generator:  opts.Generator,
		summarizer: opts.Summarizer,
		tenants:    newTenants(opts.WindowSize, opts.Summarizer != nil),
		log:        opts.Logger.With().Str("component", "engine").Logger(),
		retrieveK:  opts.RetrieveK,
		topN:       opts.TopN,
		genTimeout: opts.GenerateTimeout,
	}, nil
}

func validUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	return nil
}

// Recommend runs the full pipeline for one user: profile-expanded
// retrieval, per-recipe inventory compatibility, ranking by match rate
// and truncation to the top results. In strict mode incompatible
// recipes are dropped before truncation. A retrieval failure yields an
// empty list plus the error, never a partial ranking.
func (e *Engine) Recommend(ctx context.Context, userID, query string) ([]Recommendation, error) {
	if err := validUserID(userID); err != nil {
		return nil, err
	}
	tn := e.tenants.get(userID)
	tn.mu.Lock()
	defer tn.mu.Unlock()
	return e.recommendLocked(ctx, userID, query)
}

// recommendLocked requires the caller to hold the user's tenant lock.
func (e *Engine) recommendLocked(ctx context.Context, userID, query string) ([]Recommendation, error) {
	pref, err := e.prefs.Get(ctx, userID)
	if err != nil && !errors.Is(err, preference.ErrNotFound) {
		// Degrade to an unprofiled recommendation rather than failing
		// the request over a profile read.
		e.log.Warn().Err(err).Str("user", userID).Msg("preference lookup failed, recommending without profile")
		pref = preference.Preference{UserID: userID}
	}

	found, err := e.index.Search(expandQuery(query, pref), e.retrieveK, recipe.Filter{})
	if err != nil {
		return nil, fmt.Errorf("recipe retrieval: %w", err)
	}

	fr := e.fridges.GetOrCreate(userID)
	recs := make([]Recommendation, 0, len(found))
	for _, r := range found {
		recs = append(recs, Recommendation{
			Recipe:        r,
			Compatibility: fr.CheckCompatibility(r.Ingredients),
		})
	}

	// An empty fridge keeps pure retrieval order; inventory scoring and
	// the strict-mode filter only apply once something is stocked.
	if fr.Len() > 0 {
		// Stable sort keeps retrieval relevance as the tie-break.
		sort.SliceStable(recs, func(i, j int) bool {
			return recs[i].Compatibility.MatchRate > recs[j].Compatibility.MatchRate
		})

		if fr.Mode() == fridge.ModeStrict {
			kept := recs[:0]
			for _, rec := range recs {
				if rec.Compatibility.Compatible {
					kept = append(kept, rec)
				}
			}
			recs = kept
		}
	}

	if len(recs) > e.topN {
		recs = recs[:e.topN]
	}
	return recs, nil
}

// expandQuery appends the user's cuisines and favorite ingredients to
// the raw query so retrieval leans toward the profile.
func expandQuery(query string, pref preference.Preference) string {
	parts := make([]string, 0, 1+len(pref.Cuisines)+len(pref.FavoriteIngredients))
	if q := strings.TrimSpace(query); q != "" {
		parts = append(parts, q)
	}
	parts = append(parts, pref.Cuisines...)
	parts = append(parts, pref.FavoriteIngredients...)
	return strings.Join(parts, " ")
}

// UpdatePreference merges a partial update into the user's profile,
// creating it on first update.
func (e *Engine) UpdatePreference(ctx context.Context, userID string, update preference.Update) (preference.Preference, error) {
	if err := validUserID(userID); err != nil {
		return preference.Preference{}, err
	}
	if err := update.Validate(); err != nil {
		return preference.Preference{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	tn := e.tenants.get(userID)
	tn.mu.Lock()
	defer tn.mu.Unlock()

	merged, err := e.prefs.Update(ctx, userID, update)
	if err != nil {
		return preference.Preference{}, err
	}
	e.log.Debug().Str("user", userID).Msg("preference updated")
	return merged, nil
}

// GetPreference returns the stored profile; preference.ErrNotFound when
// the user has never recorded one.
func (e *Engine) GetPreference(ctx context.Context, userID string) (preference.Preference, error) {
	if err := validUserID(userID); err != nil {
		return preference.Preference{}, err
	}
	return e.prefs.Get(ctx, userID)
}

// DeletePreference removes the stored profile; absent is not an error.
func (e *Engine) DeletePreference(ctx context.Context, userID string) error {
	if err := validUserID(userID); err != nil {
		return err
	}
	tn := e.tenants.get(userID)
	tn.mu.Lock()
	defer tn.mu.Unlock()
	return e.prefs.Delete(ctx, userID)
}

// Fridge actions.
const (
	FridgeAdd     = "add"
	FridgeRemove  = "remove"
	FridgeList    = "list"
	FridgeClear   = "clear"
	FridgeSetMode = "set_mode"
)

// FridgeRequest is one inventory operation.
type FridgeRequest struct {
	Action      string   `json:"action"`
	Ingredients []string `json:"ingredients,omitempty"`
	Mode        string   `json:"mode,omitempty"`
}

// FridgeState is the inventory after an operation.
type FridgeState struct {
	UserID      string      `json:"user_id"`
	Mode        fridge.Mode `json:"mode"`
	Ingredients []string    `json:"ingredients"`
	Changed     int         `json:"changed"`
}

// FridgeOp validates then applies one inventory operation. Validation
// happens entirely before mutation: a malformed request leaves the
// fridge untouched.
func (e *Engine) FridgeOp(ctx context.Context, userID string, req FridgeRequest) (FridgeState, error) {
	if err := validUserID(userID); err != nil {
		return FridgeState{}, err
	}

	var mode fridge.Mode
	switch req.Action {
	case FridgeAdd, FridgeRemove:
		if len(req.Ingredients) == 0 {
			return FridgeState{}, fmt.Errorf("%w: action %q needs at least one ingredient", ErrValidation, req.Action)
		}
	case FridgeSetMode:
		parsed, err := fridge.ParseMode(req.Mode)
		if err != nil {
			return FridgeState{}, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		mode = parsed
	case FridgeList, FridgeClear:
	default:
		return FridgeState{}, fmt.Errorf("%w: unknown fridge action %q", ErrValidation, req.Action)
	}

	tn := e.tenants.get(userID)
	tn.mu.Lock()
	defer tn.mu.Unlock()

	fr := e.fridges.GetOrCreate(userID)
	changed := 0
	switch req.Action {
	case FridgeAdd:
		changed = len(fr.AddIngredients(req.Ingredients))
	case FridgeRemove:
		changed = fr.RemoveIngredients(req.Ingredients)
	case FridgeClear:
		changed = fr.Len()
		fr.Clear()
	case FridgeSetMode:
		fr.SetMode(mode)
	}

	return FridgeState{
		UserID:      userID,
		Mode:        fr.Mode(),
		Ingredients: fr.Names(),
		Changed:     changed,
	}, nil
}

// Chat runs one conversational turn: build the prompt from the user's
// memory tiers and current recommendations, call the generator under a
// deadline, record the turn, then fold any evicted turns into the
// summary. A generator timeout degrades to a canned reply instead of
// failing the turn.
func (e *Engine) Chat(ctx context.Context, userID, message string) (string, error) {
	return e.chat(ctx, userID, message, nil)
}

// ChatStream is Chat with incremental delivery: onFragment receives
// reply fragments as they arrive, and the full reply is returned once
// the stream ends.
func (e *Engine) ChatStream(ctx context.Context, userID, message string, onFragment func(string)) (string, error) {
	if onFragment == nil {
		return e.chat(ctx, userID, message, nil)
	}
	return e.chat(ctx, userID, message, onFragment)
}

func (e *Engine) chat(ctx context.Context, userID, message string, onFragment func(string)) (string, error) {
	if err := validUserID(userID); err != nil {
		return "", err
	}
	if strings.TrimSpace(message) == "" {
		return "", fmt.Errorf("%w: message is required", ErrValidation)
	}
	if e.generator == nil {
		return "", fmt.Errorf("no text generator configured")
	}

	tn := e.tenants.get(userID)
	tn.mu.Lock()
	defer tn.mu.Unlock()

	prompt := e.buildPrompt(ctx, userID, tn, message)

	gctx, cancel := context.WithTimeout(ctx, e.genTimeout)
	defer cancel()

	var reply string
	var err error
	if onFragment != nil {
		var b strings.Builder
		err = e.generator.GenerateStream(gctx, prompt, func(fragment string) {
			b.WriteString(fragment)
			onFragment(fragment)
		})
		reply = b.String()
	} else {
		reply, err = e.generator.Generate(gctx, prompt)
	}
	if err != nil {
		if !errors.Is(err, providers.ErrTimeout) {
			return "", fmt.Errorf("text generation: %w", err)
		}
		e.log.Warn().Str("user", userID).Msg("text generation timed out, degrading")
		reply = degradedReply
		if onFragment != nil {
			onFragment(reply)
		}
	}

	tn.session.Append(message, reply)
	e.summarizeLocked(ctx, userID, tn)
	return reply, nil
}

// summarizeLocked folds evicted turns into the running summary. Best
// effort: failures are logged and the old summary stands.
func (e *Engine) summarizeLocked(ctx context.Context, userID string, tn *tenant) {
	if e.summarizer == nil || tn.session.PendingCount() == 0 {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, e.genTimeout)
	defer cancel()
	if err := e.summarizer.Summarize(sctx, tn.session); err != nil {
		e.log.Warn().Err(err).Str("user", userID).Msg("session summarization failed")
	}
}

// buildPrompt assembles the generator prompt from profile, inventory,
// current recommendations and the session memory tiers.
func (e *Engine) buildPrompt(ctx context.Context, userID string, tn *tenant, message string) string {
	var b strings.Builder
	b.WriteString("你是小厨神，一位专业又亲切的做饭助手。根据用户的口味、冰箱里的食材和候选菜谱，用简洁友好的中文回答。\n")

	pref, err := e.prefs.Get(ctx, userID)
	if err == nil {
		b.WriteString("\n[用户画像]\n" + pref.Text() + "\n")
	}

	if fr, ok := e.fridges.Get(userID); ok && fr.Len() > 0 {
		b.WriteString("\n[冰箱现有食材]\n" + strings.Join(fr.Names(), ", ") + "\n")
	}

	if recs, err := e.recommendLocked(ctx, userID, message); err == nil && len(recs) > 0 {
		b.WriteString("\n[候选菜谱]\n")
		for _, rec := range recs {
			fmt.Fprintf(&b, "- %s（食材匹配度 %.0f%%", rec.Recipe.Name, rec.Compatibility.MatchRate*100)
			if len(rec.Compatibility.Missing) > 0 {
				b.WriteString("，缺少: " + strings.Join(rec.Compatibility.Missing, ", "))
			}
			b.WriteString("）\n")
		}
	}

	if summary := tn.session.Summary(); summary != "" {
		b.WriteString("\n[此前对话摘要]\n" + summary + "\n")
	}
	if transcript := tn.session.Transcript(); transcript != "" {
		b.WriteString("\n[最近对话]\n" + transcript + "\n")
	}

	b.WriteString("\n用户: " + message + "\n小厨神:")
	return b.String()
}

// Profile aggregates everything the engine knows about one user.
type Profile struct {
	UserID         string                `json:"user_id"`
	Preference     preference.Preference `json:"preference"`
	HasPreference  bool                  `json:"has_preference"`
	Fridge         fridge.Snapshot       `json:"fridge"`
	SessionTurns   int                   `json:"session_turns"`
	SessionSummary string                `json:"session_summary,omitempty"`
}

// GetProfile returns the aggregate view of one user's state.
func (e *Engine) GetProfile(ctx context.Context, userID string) (Profile, error) {
	if err := validUserID(userID); err != nil {
		return Profile{}, err
	}
	tn := e.tenants.get(userID)
	tn.mu.Lock()
	defer tn.mu.Unlock()

	profile := Profile{UserID: userID}
	pref, err := e.prefs.Get(ctx, userID)
	switch {
	case err == nil:
		profile.Preference = pref
		profile.HasPreference = true
	case errors.Is(err, preference.ErrNotFound):
	default:
		return Profile{}, err
	}

	profile.Fridge = e.fridges.GetOrCreate(userID).Export()
	profile.SessionTurns = tn.session.Len()
	profile.SessionSummary = tn.session.Summary()
	return profile, nil
}

// ClearSession drops the user's conversational memory, window and
// summary both. Preferences and fridge contents are untouched.
func (e *Engine) ClearSession(userID string) error {
	if err := validUserID(userID); err != nil {
		return err
	}
	tn := e.tenants.get(userID)
	tn.mu.Lock()
	defer tn.mu.Unlock()
	tn.session.Clear()
	return nil
}

// RemoveUser forgets a user entirely: preference record, fridge and
// session.
func (e *Engine) RemoveUser(ctx context.Context, userID string) error {
	if err := validUserID(userID); err != nil {
		return err
	}
	tn := e.tenants.get(userID)
	tn.mu.Lock()
	defer tn.mu.Unlock()

	if err := e.prefs.Delete(ctx, userID); err != nil {
		return err
	}
	e.fridges.Remove(userID)
	e.tenants.remove(userID)
	return nil
}

// SearchRecipes queries the shared corpus directly, without profile
// expansion or inventory scoring.
func (e *Engine) SearchRecipes(query string, k int, filter recipe.Filter) ([]recipe.Recipe, error) {
	return e.index.Search(query, k, filter)
}

// SimilarProfiles finds users whose taste descriptors are nearest to
// the query text.
func (e *Engine) SimilarProfiles(ctx context.Context, query string, k int) ([]preference.Preference, error) {
	return e.prefs.SearchSimilar(ctx, query, k)
}

// Users lists every user id the engine has seen this process.
func (e *Engine) Users() []string {
	return e.tenants.userIDs()
}
