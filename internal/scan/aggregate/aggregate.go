// Package aggregate expands a seed, looks its addresses up with the balance
// provider and folds the answers into summaries and result documents.
//
// Provider failures never fail an aggregation: a failed batch or standard is
// logged and left out of the totals. Only seed and depth validation errors
// are returned.
package aggregate

import (
	"cmp"
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/seedscan/internal/core/domain"
	"github.com/vietddude/seedscan/internal/core/hd"
	"github.com/vietddude/seedscan/internal/infra/provider"
	"github.com/vietddude/seedscan/internal/metrics"
)

// Mode selects how addresses are discovered.
type Mode string

const (
	// ModeAddress derives both branches locally and queries them in batches.
	ModeAddress Mode = "address"
	// ModeXpub hands each account xpub to the provider's gap-limited discovery.
	ModeXpub Mode = "xpub"
)

// ParseMode returns ModeXpub for "xpub" and ModeAddress for anything else.
func ParseMode(s string) Mode {
	if strings.EqualFold(strings.TrimSpace(s), string(ModeXpub)) {
		return ModeXpub
	}
	return ModeAddress
}

// maxParallelBatches bounds concurrent provider batches per aggregation.
// The provider's own guard still applies on top.
const maxParallelBatches = 4

// Aggregator combines derivation with provider lookups.
type Aggregator struct {
	provider provider.AddressProvider
	logger   *slog.Logger
	now      func() time.Time
}

// New creates an Aggregator. A nil provider disables lookups: documents are
// built from derivation alone with zero totals.
func New(p provider.AddressProvider, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{provider: p, logger: logger, now: time.Now}
}

// Summarize returns the flat summary used by the stream's internal enrichment.
func (a *Aggregator) Summarize(
	ctx context.Context,
	seedHex string,
	depth int,
	mode Mode,
) (*domain.Summary, error) {
	keys, err := hd.Expand(seedHex)
	if err != nil {
		return nil, err
	}
	if depth <= 0 {
		return nil, domain.ErrInvalidDepth
	}

	sum := &domain.Summary{
		Xprv:      keys.Xprv,
		Yprv:      keys.Yprv,
		Zprv:      keys.Zprv,
		Xpub:      keys.Xpub,
		Ypub:      keys.Ypub,
		Zpub:      keys.Zpub,
		Positives: []domain.AddressInfo{},
	}

	var records []domain.AddressInfo
	if mode == ModeXpub {
		found, err := a.discover(ctx, keys.SeedHex, depth)
		if err != nil {
			return nil, err
		}
		for _, s := range domain.Standards {
			records = append(records, found[s]...)
		}
	} else {
		derivs, err := hd.DeriveAddresses(keys.SeedHex, depth)
		if err != nil {
			return nil, err
		}
		var all []string
		for _, d := range derivs {
			all = append(all, d.Addresses()...)
		}
		infos, answered := a.lookup(ctx, all)
		for _, addr := range all {
			if answered[addr] {
				records = append(records, infos[addr])
			}
		}
	}

	for _, info := range records {
		sum.Totals.Add(info)
		if info.Active() {
			sum.Positives = append(sum.Positives, info)
		}
	}
	return sum, nil
}

// Aggregate builds the structured result document for a seed.
func (a *Aggregator) Aggregate(
	ctx context.Context,
	seedHex string,
	depth int,
	mode Mode,
) (*domain.ResultDocument, error) {
	keys, err := hd.Expand(seedHex)
	if err != nil {
		return nil, err
	}
	if depth <= 0 {
		return nil, domain.ErrInvalidDepth
	}
	fp, err := hd.RootFingerprint(keys.SeedHex)
	if err != nil {
		return nil, err
	}

	doc := &domain.ResultDocument{
		ID:        uuid.NewString(),
		CreatedAt: a.now().UTC(),
		Source:    domain.SourceRandom,
		Input:     domain.ResultInput{PrivateKeyHex: "0x" + keys.SeedHex},
		Bip39:     domain.Bip39Info{Note: domain.Bip39NotRecoverable},
		ExtendedKeys: domain.ExtendedKeySummary{
			Xprv:            keys.Xprv,
			Xpub:            keys.Xpub,
			Yprv:            keys.Yprv,
			Ypub:            keys.Ypub,
			Zprv:            keys.Zprv,
			Zpub:            keys.Zpub,
			RootFingerprint: fp,
		},
		Results: domain.Results{Bitcoin: make(map[string]*domain.DerivationResult, len(domain.Standards))},
	}

	if mode == ModeXpub {
		found, err := a.discover(ctx, keys.SeedHex, depth)
		if err != nil {
			return nil, err
		}
		for _, s := range domain.Standards {
			doc.Results.Bitcoin[s.Bucket()] = bucketFromRecords(s, found[s])
			for _, info := range found[s] {
				doc.Totals.Add(info)
			}
		}
		return doc, nil
	}

	derivs, err := hd.DeriveAddresses(keys.SeedHex, depth)
	if err != nil {
		return nil, err
	}
	var all []string
	for _, d := range derivs {
		all = append(all, d.Addresses()...)
	}
	infos, answered := a.lookup(ctx, all)

	for _, d := range derivs {
		ext := branchResult(d.Standard, domain.BranchExternal, d.External, infos, answered)
		ext.Change = branchResult(d.Standard, domain.BranchChange, d.Change, infos, answered)
		doc.Results.Bitcoin[d.Standard.Bucket()] = ext
	}
	for _, addr := range all {
		if answered[addr] {
			doc.Totals.Add(infos[addr])
		}
	}
	return doc, nil
}

// lookup queries addrs in provider-sized batches. answered holds every
// address whose batch succeeded; addresses the provider has no record for
// get a zero record.
func (a *Aggregator) lookup(
	ctx context.Context,
	addrs []string,
) (map[string]domain.AddressInfo, map[string]bool) {
	infos := make(map[string]domain.AddressInfo, len(addrs))
	answered := make(map[string]bool, len(addrs))
	if a.provider == nil || len(addrs) == 0 {
		return infos, answered
	}

	batches := provider.Chunk(addrs, provider.MaxAddressesPerCall)
	results := make([]map[string]domain.AddressInfo, len(batches))
	partial := make([]bool, len(batches))

	var g errgroup.Group
	g.SetLimit(maxParallelBatches)
	for i, batch := range batches {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			res, err := a.provider.FetchAddresses(ctx, batch)
			if err != nil {
				metrics.ProviderErrorsSwallowed.WithLabelValues(string(ModeAddress)).Inc()
				a.logger.Warn("address batch lookup failed",
					"batch", i,
					"size", len(batch),
					"recovered", len(res),
					"error", err,
				)
				// Records returned with the error are kept; the rest are unanswered.
				results[i], partial[i] = res, true
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	for i, res := range results {
		if res == nil {
			continue
		}
		for _, addr := range batches[i] {
			info, ok := res[addr]
			if !ok && partial[i] {
				continue
			}
			answered[addr] = true
			if !ok {
				info = domain.AddressInfo{Address: addr, UTXO: []json.RawMessage{}}
			}
			infos[addr] = info
		}
	}
	return infos, answered
}

// discover runs xpub discovery for every standard's account key.
func (a *Aggregator) discover(
	ctx context.Context,
	seedHex string,
	depth int,
) (map[domain.Standard][]domain.AddressInfo, error) {
	xpubs, err := hd.AccountXpubs(seedHex)
	if err != nil {
		return nil, err
	}

	found := make(map[domain.Standard][]domain.AddressInfo, len(domain.Standards))
	if a.provider == nil {
		return found, nil
	}

	results := make([][]domain.AddressInfo, len(domain.Standards))
	limit := provider.ClampXpubLimit(depth)

	var g errgroup.Group
	for i, s := range domain.Standards {
		g.Go(func() error {
			legacy, err := hd.ConvertToLegacyXpub(xpubs[s])
			if err != nil {
				a.logger.Warn("xpub conversion failed", "standard", s, "error", err)
				return nil
			}
			res, err := a.provider.FetchXpub(ctx, legacy, limit)
			if err != nil {
				metrics.ProviderErrorsSwallowed.WithLabelValues(string(ModeXpub)).Inc()
				a.logger.Warn("xpub discovery failed", "standard", s, "error", err)
				return nil
			}
			results[i] = res.Addresses
			return nil
		})
	}
	_ = g.Wait()

	for i, s := range domain.Standards {
		found[s] = results[i]
	}
	return found, nil
}

func branchResult(
	s domain.Standard,
	b domain.Branch,
	addrs []string,
	infos map[string]domain.AddressInfo,
	answered map[string]bool,
) *domain.DerivationResult {
	res := &domain.DerivationResult{
		AccountPath:   s.AccountPath(),
		Addresses:     make([]domain.AddressEntry, 0, len(addrs)),
		ActiveIndices: []uint32{},
	}
	for i, addr := range addrs {
		entry := domain.AddressEntry{
			Index:          uint32(i),
			Address:        addr,
			DerivationPath: s.Path(b, uint32(i)),
		}
		if answered[addr] {
			info := infos[addr]
			txc := info.TransactionCount
			entry.TxCount = &txc
			entry.API = &domain.ProviderAPI{Blockchair: &info}
			if info.Active() {
				res.ActiveIndices = append(res.ActiveIndices, uint32(i))
			}
		}
		res.Addresses = append(res.Addresses, entry)
	}
	return res
}

// bucketFromRecords places discovered records by their "branch/index" path.
// Records without a parseable path count towards totals only.
func bucketFromRecords(s domain.Standard, records []domain.AddressInfo) *domain.DerivationResult {
	ext := &domain.DerivationResult{
		AccountPath:   s.AccountPath(),
		Addresses:     []domain.AddressEntry{},
		ActiveIndices: []uint32{},
	}
	change := &domain.DerivationResult{
		AccountPath:   s.AccountPath(),
		Addresses:     []domain.AddressEntry{},
		ActiveIndices: []uint32{},
	}

	for _, info := range records {
		b, idx, ok := parsePath(info.Path)
		if !ok {
			continue
		}
		target := ext
		if b == domain.BranchChange {
			target = change
		}
		txc := info.TransactionCount
		target.Addresses = append(target.Addresses, domain.AddressEntry{
			Index:          idx,
			Address:        info.Address,
			DerivationPath: s.Path(b, idx),
			TxCount:        &txc,
			API:            &domain.ProviderAPI{Blockchair: &info},
		})
		if info.Active() {
			target.ActiveIndices = append(target.ActiveIndices, idx)
		}
	}

	sortEntries(ext)
	sortEntries(change)
	ext.Change = change
	return ext
}

func sortEntries(r *domain.DerivationResult) {
	slices.SortFunc(r.Addresses, func(x, y domain.AddressEntry) int {
		return cmp.Compare(x.Index, y.Index)
	})
	slices.Sort(r.ActiveIndices)
}

func parsePath(path string) (domain.Branch, uint32, bool) {
	branch, index, ok := strings.Cut(path, "/")
	if !ok {
		return 0, 0, false
	}
	var b domain.Branch
	switch branch {
	case "0":
		b = domain.BranchExternal
	case "1":
		b = domain.BranchChange
	default:
		return 0, 0, false
	}
	i, err := strconv.ParseUint(index, 10, 32)
	if err != nil {
		return 0, 0, false
	}
	return b, uint32(i), true
}
