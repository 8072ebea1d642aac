package ofac

import (
	"log/slog"
	"time"

	"amlwatch/internal/domain"
)

// SDNURL is the fixed public download location of the SDN list.
const SDNURL = "https://www.treasury.gov/ofac/downloads/sdn.xml"

// SourceName is the scheduler key and cache namespace for this feed.
const SourceName = "ofac-sdn"

// Source wires the SDN parser and normalizer behind ports.Source.
type Source struct {
	url    string
	logger *slog.Logger
}

// SourceOption configures a Source.
type SourceOption func(*Source)

// WithURL overrides the feed URL, mainly for tests and mirrors.
func WithURL(url string) SourceOption {
	return func(s *Source) {
		s.url = url
	}
}

// WithLogger sets the logger used for per-record skip reporting.
func WithLogger(logger *slog.Logger) SourceOption {
	return func(s *Source) {
		s.logger = logger
	}
}

// NewSource constructs the OFAC SDN source.
func NewSource(opts ...SourceOption) *Source {
	s := &Source{url: SDNURL}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Source) Name() string { return SourceName }

func (s *Source) URL() string { return s.url }

// Decode parses the raw SDN document and normalizes every usable entry.
func (s *Source) Decode(raw []byte, now time.Time) ([]*domain.Entity, int, error) {
	list, err := Parse(raw)
	if err != nil {
		return nil, 0, err
	}
	entities, skipped := NormalizeAll(list.Entries, now, s.logger)
	return entities, skipped, nil
}
