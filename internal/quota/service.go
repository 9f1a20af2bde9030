package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aidqr/aidqr/internal/metrics"
)

// DefaultKeyTTL is how long an issued key stays redeemable.
const DefaultKeyTTL = 12 * time.Hour

// Renderer turns a key into an image data URL.
type Renderer interface {
	Render(text string) (string, error)
}

// Config holds the tunables of a Service.
type Config struct {
	KeyTTL   time.Duration
	Location *time.Location
}

// Issued is the result of a successful key issuance.
type Issued struct {
	Key       string
	QRCode    string
	ExpiresAt time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.clock = now
	}
}

// Service issues and redeems keys against the ledger.
type Service struct {
	ledger   *Ledger
	renderer Renderer
	cfg      Config
	clock    func() time.Time
}

// NewService creates a new quota Service.
func NewService(ledger *Ledger, renderer Renderer, cfg Config, opts ...Option) *Service {
	if cfg.KeyTTL <= 0 {
		cfg.KeyTTL = DefaultKeyTTL
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	s := &Service{
		ledger:   ledger,
		renderer: renderer,
		cfg:      cfg,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the current time in the configured calendar location.
func (s *Service) Now() time.Time {
	return s.clock().In(s.cfg.Location)
}

// Issue creates a fresh key for kind, replacing any outstanding one. The
// record for id is created with the limits of category if it does not exist
// yet; an existing record keeps its first tier.
func (s *Service) Issue(ctx context.Context, id, category string, kind Kind) (*Issued, error) {
	if id == "" || category == "" {
		return nil, fmt.Errorf("%w: id and disadvantaged are required", ErrValidation)
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown resource type %q", ErrValidation, kind)
	}

	key, err := newKey()
	if err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}

	now := s.Now()
	expires := now.Add(s.cfg.KeyTTL)

	_, created := s.ledger.GetOrCreate(id, category, now)

	changed := created
	_, err = s.ledger.Update(id, func(r *Record) error {
		if resetIfStale(r, now) {
			changed = true
		}
		if r.Used.Of(kind) >= r.DailyLimit.Of(kind) {
			return fmt.Errorf("%w: %s limit of %d reached", ErrQuotaExceeded, kind, r.DailyLimit.Of(kind))
		}
		r.setKey(kind, key, expires)
		changed = true
		return nil
	})

	if changed {
		_ = s.ledger.Persist(ctx)
	}
	if err != nil {
		return nil, err
	}

	qr, err := s.renderer.Render(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}

	metrics.KeysIssuedTotal.WithLabelValues(string(kind)).Inc()
	slog.Debug("key issued", "user_id", id, "kind", kind, "expires_at", expires)

	return &Issued{
		Key:       key,
		QRCode:    qr,
		ExpiresAt: expires,
	}, nil
}

// Redeem consumes one unit of kind for id if key is the user's outstanding,
// unexpired key and quota remains. The key is cleared on success so it can
// never be redeemed twice.
func (s *Service) Redeem(ctx context.Context, id, key string, kind Kind) (Allowance, error) {
	if id == "" || key == "" || kind == "" {
		return Allowance{}, fmt.Errorf("%w: id, key and type are required", ErrValidation)
	}
	if !kind.Valid() {
		return Allowance{}, fmt.Errorf("%w: type must be %q or %q, got %q", ErrValidation, Water, Meals, kind)
	}

	now := s.Now()

	changed := false
	rec, err := s.ledger.Update(id, func(r *Record) error {
		if resetIfStale(r, now) {
			changed = true
		}

		stored, expires, ok := r.ActiveKey(kind)
		if !ok || !keysEqual(key, stored) {
			return fmt.Errorf("%w: no matching %s key", ErrInvalidKey, kind)
		}
		if !expires.After(now) {
			return fmt.Errorf("%w: %s key expired at %s", ErrInvalidKey, kind, expires.Format(time.RFC3339))
		}
		if r.Used.Of(kind) >= r.DailyLimit.Of(kind) {
			return fmt.Errorf("%w: %s limit of %d reached", ErrQuotaExceeded, kind, r.DailyLimit.Of(kind))
		}

		r.Used.inc(kind)
		r.clearKey(kind)
		changed = true
		return nil
	})

	if changed {
		_ = s.ledger.Persist(ctx)
	}
	metrics.RedemptionsTotal.WithLabelValues(string(kind), redemptionResult(err)).Inc()
	if err != nil {
		return Allowance{}, err
	}

	return rec.Remaining(), nil
}

// Status returns the current record for id after applying any pending
// calendar reset.
func (s *Service) Status(ctx context.Context, id string) (Record, error) {
	if id == "" {
		return Record{}, fmt.Errorf("%w: id is required", ErrValidation)
	}

	now := s.Now()

	changed := false
	rec, err := s.ledger.Update(id, func(r *Record) error {
		changed = resetIfStale(r, now)
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	if changed {
		_ = s.ledger.Persist(ctx)
	}
	return rec, nil
}

func redemptionResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidKey):
		return "invalid_key"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota_exceeded"
	default:
		return "error"
	}
}
