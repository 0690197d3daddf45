package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jlaffaye/ftp"
	"github.com/smallbiznis/storefront/internal/config"
	"go.uber.org/zap"
)

const (
	DefaultDialTimeout = 30 * time.Second
	defaultMaxRetries  = 3
	// maxFeedSize caps a downloaded supplier file.
	maxFeedSize = 64 << 20
)

// Source produces the raw contents of one supplier stock file.
type Source interface {
	Fetch(ctx context.Context) (io.ReadCloser, error)
}

// SourceFactory builds a Source for a supplier definition.
type SourceFactory func(cfg config.SupplierConfig) Source

// FTPSource downloads a supplier file over plain FTP.
type FTPSource struct {
	cfg         config.SupplierConfig
	log         *zap.Logger
	dialTimeout time.Duration
	maxRetries  uint64
}

func NewFTPSourceFactory(log *zap.Logger) SourceFactory {
	return func(cfg config.SupplierConfig) Source {
		return NewFTPSource(cfg, log)
	}
}

func NewFTPSource(cfg config.SupplierConfig, log *zap.Logger) *FTPSource {
	if log == nil {
		log = zap.NewNop()
	}
	return &FTPSource{
		cfg:         cfg,
		log:         log.Named("feed.ftp").With(zap.String("supplier", cfg.Key)),
		dialTimeout: DefaultDialTimeout,
		maxRetries:  defaultMaxRetries,
	}
}

func (s *FTPSource) Fetch(ctx context.Context) (io.ReadCloser, error) {
	var data []byte
	attempt := 0

	operation := func() error {
		attempt++
		body, err := s.download(ctx)
		if err != nil {
			if isPermanent(err) {
				return backoff.Permanent(err)
			}
			s.log.Warn("feed download failed", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		data = body
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 2 * time.Second
	policy.MaxInterval = 30 * time.Second
	policy.MaxElapsedTime = 3 * time.Minute

	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, s.maxRetries), ctx)); err != nil {
		if errors.Is(err, ErrFeedTooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("download %s from %s: %w: %w", s.cfg.Path, s.cfg.Host, ErrFeedUnavailable, err)
	}

	s.log.Info("feed downloaded", zap.Int("bytes", len(data)))
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *FTPSource) download(ctx context.Context) ([]byte, error) {
	conn, err := ftp.Dial(s.cfg.Address(),
		ftp.DialWithTimeout(s.dialTimeout),
		ftp.DialWithContext(ctx),
	)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = conn.Quit()
	}()

	if err := conn.Login(s.cfg.Username, s.cfg.Password); err != nil {
		return nil, err
	}

	resp, err := conn.Retr(strings.TrimPrefix(s.cfg.Path, "/"))
	if err != nil {
		return nil, err
	}
	defer resp.Close()

	body, err := io.ReadAll(io.LimitReader(resp, maxFeedSize+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxFeedSize {
		return nil, backoff.Permanent(ErrFeedTooLarge)
	}
	return body, nil
}

// isPermanent treats FTP 5xx replies (bad login, missing file) as non-retryable.
func isPermanent(err error) bool {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return protoErr.Code >= 500 && protoErr.Code < 600
	}
	return false
}
