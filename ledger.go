// Package ledger is the root facade over the deterministic decision
// ledger engine. The import graph enforces a strict no-cycle rule:
// ledger (root) imports internal/*, but internal/* never imports ledger.
// Public types in types.go and interfaces.go are standalone structs and
// function types with no internal imports, so external code implementing
// EventHook or Verifier never needs to see internal/cell or internal/chain.
// Conversion helpers that cross that boundary (toPublicCell, toInternalCellStub)
// live here, because this is the only file that sees both sides of it.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/decisiongraph/ledger/internal/anchors"
	"github.com/decisiongraph/ledger/internal/cell"
	"github.com/decisiongraph/ledger/internal/chain"
	"github.com/decisiongraph/ledger/internal/config"
	"github.com/decisiongraph/ledger/internal/domainmodel"
	"github.com/decisiongraph/ledger/internal/ledgererr"
	"github.com/decisiongraph/ledger/internal/precedent"
	"github.com/decisiongraph/ledger/internal/segwal"
	"github.com/decisiongraph/ledger/internal/shadow"
	"github.com/decisiongraph/ledger/internal/signing"
	"github.com/decisiongraph/ledger/internal/telemetry"
)

// Ledger wires the chain, its WAL, the precedent registry, and proof
// signing into one handle. All fields are private — use New's options to
// configure it.
type Ledger struct {
	cfg            config.Config
	chain          *chain.Chain
	precedents     *precedent.Registry
	signer         *signing.Signer
	verifier       Verifier
	ops            *telemetry.Operations
	otelShutdown   telemetry.Shutdown
	eventHooks     []EventHook
	strictTemporal bool
	logger         *slog.Logger
	version        string
}

// verifierAdapter lets a Verifier satisfy chain.Verifier without
// internal/chain ever importing the root package.
type verifierAdapter struct{ v Verifier }

func (a verifierAdapter) Verify(c cell.Cell) (bool, error) { return a.v.Verify(toPublicCell(c)) }

// New loads configuration, replays the WAL into an in-memory chain, and
// wires the precedent registry and signer. It does not start any
// background goroutines; there is nothing to Run — every operation is a
// synchronous call that fsyncs before returning (§4.4 durability
// contract), so there is no server loop to block on.
func New(ctx context.Context, opts ...Option) (*Ledger, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.storageRoot != "" {
		cfg.StorageRoot = o.storageRoot
	}
	if o.defaultDomain != "" {
		cfg.DefaultDomain = o.defaultDomain
	}
	if o.walSegmentCap != 0 {
		cfg.WALSegmentCap = o.walSegmentCap
	}
	if o.strictTemporal != nil {
		cfg.StrictTemporal = *o.strictTemporal
	}
	if o.signingPriv != "" {
		cfg.SigningPrivateKeyPath = o.signingPriv
	}
	if o.signingPub != "" {
		cfg.SigningPublicKeyPath = o.signingPub
	}
	if o.signingKeyID != "" {
		cfg.SigningKeyID = o.signingKeyID
	}

	version := o.version
	if version == "" {
		version = "dev"
	}

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	ops, err := telemetry.NewOperations()
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("telemetry operations: %w", err)
	}

	signer, err := signing.NewSigner(cfg.SigningPrivateKeyPath, cfg.SigningPublicKeyPath, cfg.SigningKeyID)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("signer: %w", err)
	}

	var verifier chain.Verifier = signer
	if o.verifier != nil {
		verifier = verifierAdapter{v: o.verifier}
	}

	c, err := loadChain(ctx, cfg.StorageRoot, logger, verifier)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("load chain: %w", err)
	}

	return &Ledger{
		cfg:            cfg,
		chain:          c,
		precedents:     precedent.New(c, logger),
		signer:         signer,
		verifier:       o.verifier,
		ops:            ops,
		otelShutdown:   otelShutdown,
		eventHooks:     o.eventHooks,
		strictTemporal: cfg.StrictTemporal,
		logger:         logger,
		version:        version,
	}, nil
}

// Close flushes telemetry. The chain itself holds no open file handles
// between calls — every Append opens, fsyncs, and closes its WAL segment
// writer, so there is nothing else to drain.
func (l *Ledger) Close(ctx context.Context) error {
	return l.otelShutdown(ctx)
}

// Status reports the loaded chain's current head and length.
func (l *Ledger) Status() ChainStatus {
	head, _ := l.chain.Head()
	return ChainStatus{
		GraphID:    l.chain.GraphID(),
		HashScheme: string(head.Header.HashScheme),
		Length:     l.chain.Len(),
		HeadCellID: head.CellID,
	}
}

// Genesis bootstraps a new chain in an empty storage root. Calling it
// against a non-empty chain fails the commit gate's genesis-uniqueness
// rule (§4.3 rule 1).
func (l *Ledger) Genesis(ctx context.Context, graphID, rootNamespace, creator string, hashScheme string) (Cell, error) {
	if graphID == "" {
		graphID = l.chain.GraphID()
	}
	params := cell.GenesisParams{
		GraphID:       graphID,
		HashScheme:    cell.HashScheme(hashScheme),
		RootNamespace: rootNamespace,
		Creator:       creator,
		SystemTime:    time.Now().UTC(),
	}
	genesis, err := cell.NewGenesis(params)
	if err != nil {
		return Cell{}, err
	}
	if err := l.chain.Append(genesis, chain.AppendOptions{StrictTemporal: l.strictTemporal}); err != nil {
		return Cell{}, err
	}
	if err := l.persist(ctx, genesis); err != nil {
		return Cell{}, err
	}
	return toPublicCell(genesis), nil
}

// Append commits a new fact/rule/decision/evidence/policy_ref/judgment
// cell on top of the current head, running the full commit gate (§4.3)
// before the WAL fsync that makes it durable. On success, every
// registered EventHook is notified in registration order; a hook error
// is logged, not propagated — the cell is already committed.
func (l *Ledger) Append(ctx context.Context, req AppendFact) (Cell, error) {
	spanCtx, end := l.ops.RecordAppend(ctx, l.chain.GraphID())
	var err error
	defer func() { end(err) }()

	head, ok := l.chain.Head()
	prevHash := cell.NullHash
	hashScheme := cell.HashSchemeCanonical
	if ok {
		prevHash = head.CellID
		hashScheme = head.Header.HashScheme
	}

	systemTime := req.SystemTime
	if systemTime.IsZero() {
		systemTime = time.Now().UTC()
	}

	cl := cell.Cell{
		Header: cell.Header{
			SchemaVersion: 1,
			GraphID:       l.chain.GraphID(),
			CellType:      cell.Type(req.CellType),
			SystemTime:    systemTime,
			PrevCellHash:  prevHash,
			HashScheme:    hashScheme,
		},
		Fact: cell.Fact{
			Namespace:     req.Namespace,
			Subject:       req.Subject,
			Predicate:     req.Predicate,
			Object:        req.Object,
			Confidence:    req.Confidence,
			SourceQuality: cell.SourceQuality(req.SourceQuality),
			ValidFrom:     req.ValidFrom,
			ValidTo:       req.ValidTo,
		},
		LogicAnchor: cell.LogicAnchor{
			RuleID:        req.RuleID,
			RuleLogicHash: req.RuleLogicHash,
		},
		Evidence: toInternalEvidence(req.Evidence),
		Proof:    cell.Proof{SignatureRequired: req.Sign},
	}

	id, err := cell.ComputeCellID(cl)
	if err != nil {
		return Cell{}, err
	}
	cl.CellID = id

	if req.Sign {
		sig, keyID, serr := l.signer.Sign(cl.CellID)
		if serr != nil {
			err = serr
			return Cell{}, err
		}
		cl.Proof.Signature = sig
		cl.Proof.SignerKeyID = keyID
	}

	if err = l.chain.Append(cl, chain.AppendOptions{StrictTemporal: l.strictTemporal, VerifySignatures: true}); err != nil {
		return Cell{}, err
	}
	if err = l.persist(spanCtx, cl); err != nil {
		return Cell{}, err
	}

	pub := toPublicCell(cl)
	for _, hook := range l.eventHooks {
		if herr := hook.OnCellAppended(spanCtx, pub); herr != nil {
			l.logger.Warn("event hook failed", "hook_error", herr)
		}
	}
	return pub, nil
}

// Verify walks the chain from cellID back to genesis and recomputes
// every cell_id, returning the ids of any cells whose recomputed hash
// does not match the one on record. An empty cellID verifies from the
// current head.
func (l *Ledger) Verify(cellID string) (valid bool, brokenCellIDs []string, err error) {
	if cellID == "" {
		head, ok := l.chain.Head()
		if !ok {
			return false, nil, ledgererr.New(ledgererr.CodeChainBreak, "chain is empty")
		}
		cellID = head.CellID
	}
	lineage, err := l.chain.TraceToGenesis(cellID)
	if err != nil {
		return false, nil, err
	}
	for _, cl := range lineage {
		ok, verr := cell.VerifyIntegrity(cl)
		if verr != nil || !ok {
			brokenCellIDs = append(brokenCellIDs, cl.CellID)
		}
	}
	return len(brokenCellIDs) == 0, brokenCellIDs, nil
}

// PrecedentStats aggregates prior judgments over a namespace prefix as of
// asOf (zero means now).
func (l *Ledger) PrecedentStats(ctx context.Context, namespacePrefix string, asOf time.Time) PrecedentStatistics {
	_, end := l.ops.RecordPrecedentQuery(ctx, l.cfg.DefaultDomain)
	defer end(nil)
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	s := l.precedents.GetStatistics(namespacePrefix, asOf)
	return PrecedentStatistics{
		Total:              s.Total,
		ByOutcome:          s.ByOutcome,
		ByDispositionBasis: s.ByDispositionBasis,
		AppealCount:        s.AppealCount,
		OverturnCount:      s.OverturnCount,
	}
}

// PrecedentsByFingerprint returns judgments whose Tier-0 fingerprint_hash
// matches exactly.
func (l *Ledger) PrecedentsByFingerprint(fingerprint, namespacePrefix string, asOf time.Time) []JudgmentSummary {
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	return toPublicJudgments(l.precedents.FindByFingerprint(fingerprint, namespacePrefix, asOf))
}

// PrecedentsByExclusionCodes returns judgments sharing any of codes among
// their reason codes.
func (l *Ledger) PrecedentsByExclusionCodes(codes []string, namespacePrefix string, asOf time.Time) []JudgmentSummary {
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	return toPublicJudgments(l.precedents.FindByExclusionCodes(codes, namespacePrefix, asOf))
}

// Simulate forks a disposable shadow chain off the base chain, overlays
// input's shadow cells, and re-executes the L1/L2/L3 precedent pipeline
// against input's case. Nothing here ever calls the base chain's Append
// (§4.10 SHD-04) — the base chain is provably unmodified by a simulation.
func (l *Ledger) Simulate(ctx context.Context, input SimulationInput) (SimulationOutcome, error) {
	_, end := l.ops.RecordSimulation(ctx, l.chain.GraphID())
	var err error
	defer func() { end(err) }()

	domainID := input.Domain
	if domainID == "" {
		domainID = l.cfg.DefaultDomain
	}
	domain, ok := domainmodel.Registered[domainID]
	if !ok {
		err = ledgererr.New(ledgererr.CodeInputInvalid, fmt.Sprintf("unknown domain %q", domainID))
		return SimulationOutcome{}, err
	}

	sc, serr := shadow.Fork(l.chain, l.logger)
	if serr != nil {
		err = serr
		return SimulationOutcome{}, err
	}
	for _, pc := range input.ShadowCells {
		if aerr := sc.AppendShadow(toInternalCellStub(pc)); aerr != nil {
			err = fmt.Errorf("append shadow cell %s: %w", pc.CellID, aerr)
			return SimulationOutcome{}, err
		}
	}

	asOf := input.AsOf
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	workers := input.Workers
	if workers <= 0 {
		workers = l.cfg.AnchorSearchWorkers
	}

	result, rerr := sc.SimulateRFA(ctx, l.precedents, shadow.RFAInput{
		CaseFacts:       input.CaseFacts,
		CaseDisposition: input.CaseDisposition,
		CaseBasis:       input.CaseBasis,
		Domain:          domain,
		NamespacePrefix: input.NamespacePrefix,
		AsOfSystemTime:  asOf,
		Workers:         workers,
	})
	if rerr != nil {
		err = rerr
		return SimulationOutcome{}, err
	}

	outcome := SimulationOutcome{
		PrimaryTypology:    result.Proof.PrimaryTypology,
		Confidence:         result.Proof.Confidence.NumericValue,
		MatchedPrecedents:  len(result.Proof.MatchedPrecedents),
		DecisiveSupporting: result.Proof.DecisiveSupporting,
		DecisiveTotal:      result.Proof.DecisiveTotal,
		AddedFacts:         result.Delta.AddedFacts,
		RemovedFacts:       result.Delta.RemovedFacts,
		ConfidenceBefore:   string(result.Delta.ConfidenceBefore),
		ConfidenceAfter:    string(result.Delta.ConfidenceAfter),
		VerdictChanged:     result.Delta.VerdictChanged,
		AnchorsIncomplete:  result.AnchorsIncomplete,
	}
	for _, hook := range l.eventHooks {
		if herr := hook.OnSimulation(ctx, outcome); herr != nil {
			l.logger.Warn("event hook failed", "hook_error", herr)
		}
	}
	return outcome, nil
}

// DetectAnchors runs a counterfactual anchor search (§4.10 CTF-01..04)
// against input.Verdict, a caller-supplied pure function of an active
// component set. It does not itself consult the chain or a simulation —
// callers typically derive input.Verdict from a Simulate result's
// matched-precedent set, re-scoring with a subset of shadow components
// withdrawn.
func (l *Ledger) DetectAnchors(ctx context.Context, input AnchorSearchInput) (AnchorSearchResult, error) {
	result, err := anchors.DetectCounterfactualAnchors(ctx, input.Components, input.BaseVerdict,
		anchors.VerdictFunc(input.Verdict),
		anchors.ExecutionBudget{
			MaxAnchorAttempts: input.MaxAnchorAttempts,
			MaxRuntimeMS:      input.MaxRuntimeMS,
			MaxCellsTouched:   input.MaxCellsTouched,
		},
	)
	if err != nil {
		return AnchorSearchResult{}, err
	}
	return AnchorSearchResult{
		Anchors:           result.Anchors,
		AnchorHashes:      result.AnchorHashes,
		AttemptsUsed:      result.AttemptsUsed,
		CellsTouched:      result.CellsTouched,
		ElapsedMS:         result.ElapsedMS,
		AnchorsIncomplete: result.AnchorsIncomplete,
	}, nil
}

// persist appends cl's JSON encoding to the WAL, opening (and thereby
// recovering) the storage root first. The chain head must not have
// already advanced when this is called for anything other than a
// newly-appended cell — callers append to the in-memory chain first so a
// WAL failure here still leaves the in-memory and on-disk views
// consistent on retry (both are one cell behind).
func (l *Ledger) persist(ctx context.Context, cl cell.Cell) error {
	payload, err := json.Marshal(cl)
	if err != nil {
		return fmt.Errorf("encode cell: %w", err)
	}
	w, err := segwal.Open(ctx, l.cfg.StorageRoot, string(cl.Header.HashScheme), cl.Header.GraphID, l.cfg.WALSegmentCap)
	if err != nil {
		return fmt.Errorf("open wal: %w", err)
	}
	defer w.Close()

	sum := sha256Sum(payload)
	if _, err := w.Append(payload, sum); err != nil {
		return fmt.Errorf("wal append: %w", err)
	}
	return nil
}

// loadChain rebuilds an in-memory chain from storageRoot's WAL segments,
// in WAL sequence order. A missing storage root yields an empty chain rather
// than an error, so Genesis can target a fresh directory.
func loadChain(ctx context.Context, storageRoot string, logger *slog.Logger, verifier chain.Verifier) (*chain.Chain, error) {
	if _, err := os.Stat(storageRoot); os.IsNotExist(err) {
		return chain.New(logger, verifier), nil
	}
	if _, err := segwal.RecoverAndRebuild(ctx, storageRoot); err != nil {
		return nil, fmt.Errorf("wal recovery: %w", err)
	}
	records, err := segwal.ReadAll(storageRoot)
	if err != nil {
		return nil, fmt.Errorf("wal read: %w", err)
	}

	c := chain.New(logger, verifier)
	for _, rec := range records {
		var cl cell.Cell
		if derr := json.Unmarshal(rec.Payload, &cl); derr != nil {
			return nil, fmt.Errorf("decode wal record %d: %w", rec.Sequence, derr)
		}
		if err := c.Append(cl, chain.AppendOptions{}); err != nil {
			return nil, fmt.Errorf("replay cell %s: %w", cl.CellID, err)
		}
	}
	return c, nil
}

func toPublicCell(c cell.Cell) Cell {
	return Cell{
		CellID:       c.CellID,
		GraphID:      c.Header.GraphID,
		CellType:     string(c.Header.CellType),
		SystemTime:   c.Header.SystemTime,
		PrevCellHash: c.Header.PrevCellHash,
		Namespace:    c.Fact.Namespace,
		Subject:      c.Fact.Subject,
		Predicate:    c.Fact.Predicate,
		Object:       c.Fact.Object,
		RuleID:       c.LogicAnchor.RuleID,
		SignerKeyID:  c.Proof.SignerKeyID,
	}
}

// toInternalCellStub rebuilds just enough of a cell.Cell from a public
// Cell to overlay as a shadow fact: the overlay only ever reads
// Header/Fact/CellID fields back out (internal/shadow.OverlayContext),
// never re-verifies a shadow cell's signature.
func toInternalCellStub(c Cell) cell.Cell {
	return cell.Cell{
		CellID: c.CellID,
		Header: cell.Header{
			GraphID:      c.GraphID,
			CellType:     cell.Type(c.CellType),
			SystemTime:   c.SystemTime,
			PrevCellHash: c.PrevCellHash,
		},
		Fact: cell.Fact{
			Namespace: c.Namespace,
			Subject:   c.Subject,
			Predicate: c.Predicate,
			Object:    c.Object,
		},
		LogicAnchor: cell.LogicAnchor{RuleID: c.RuleID},
	}
}

func toInternalEvidence(refs []EvidenceRef) []cell.Evidence {
	if refs == nil {
		return nil
	}
	out := make([]cell.Evidence, len(refs))
	for i, r := range refs {
		out[i] = cell.Evidence{RefCellID: r.RefCellID, ArtifactURI: r.ArtifactURI, ContentHash: r.ContentHash}
	}
	return out
}

func sha256Sum(b []byte) [32]byte { return sha256.Sum256(b) }

func toPublicJudgments(records []precedent.Record) []JudgmentSummary {
	out := make([]JudgmentSummary, len(records))
	for i, rec := range records {
		out[i] = JudgmentSummary{
			CellID:           rec.CellID,
			Namespace:        rec.Namespace,
			SystemTime:       rec.SystemTime,
			OutcomeCode:      rec.Payload.OutcomeCode,
			DispositionBasis: rec.Payload.DispositionBasis,
			ReasonCodes:      rec.Payload.ReasonCodes,
			FingerprintHash:  rec.Payload.FingerprintHash,
		}
	}
	return out
}

