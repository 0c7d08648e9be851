// Package sloghooks logs mcache.Hooks events through log/slog with sampling
// and key redaction.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/mcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	ExpiredSetEvery    uint64
	ProviderErrorEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	expiredSetCtr    atomic.Uint64
	providerErrorCtr atomic.Uint64
}

var _ mcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) ServersRegistered(persistentID string, added, skipped int) {
	if h.l == nil {
		return
	}
	h.l.Info("mcache.servers_registered",
		"persistent_id", persistentID,
		"added", added,
		"skipped", skipped)
}

func (h *Hooks) ExpiredSetDeleted(key string) {
	if h.l == nil || !sample(h.opts.ExpiredSetEvery, &h.expiredSetCtr) {
		return
	}
	h.l.Debug("mcache.expired_set_deleted",
		"key", h.redact(key))
}

func (h *Hooks) BulkDeletePartial(requested, failed int) {
	if h.l == nil {
		return
	}
	h.l.Info("mcache.bulk_delete_partial",
		"requested", requested,
		"failed", failed)
}

func (h *Hooks) DecodeFailed(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("mcache.decode_failed",
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) ProviderError(op string, err error) {
	if h.l == nil || !sample(h.opts.ProviderErrorEvery, &h.providerErrorCtr) {
		return
	}
	h.l.Warn("mcache.provider_error",
		"op", op,
		"err", err)
}
