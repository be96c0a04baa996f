package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-studygen/internal/config"
	materialrepos "github.com/yungbote/neurobridge-studygen/internal/data/repos/materials"
	packrepos "github.com/yungbote/neurobridge-studygen/internal/data/repos/studypack"
	types "github.com/yungbote/neurobridge-studygen/internal/domain/studypack"
	"github.com/yungbote/neurobridge-studygen/internal/learning/convergence"
	"github.com/yungbote/neurobridge-studygen/internal/modules/studypack/steps"
	"github.com/yungbote/neurobridge-studygen/internal/platform/apierr"
	"github.com/yungbote/neurobridge-studygen/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-studygen/internal/platform/gcp"
	"github.com/yungbote/neurobridge-studygen/internal/platform/logger"
	"github.com/yungbote/neurobridge-studygen/internal/platform/neo4jdb"
	"github.com/yungbote/neurobridge-studygen/internal/platform/openai"
	"github.com/yungbote/neurobridge-studygen/internal/platform/redislock"
)

// ErrBucketUnavailable is returned by IngestObject when no text bucket is configured.
var ErrBucketUnavailable = errors.New("text bucket not configured")

type StudyPackService interface {
	CreatePack(ctx context.Context, title string) (*types.StudyPack, error)
	ListPacks(ctx context.Context, limit int) ([]*types.StudyPack, error)
	GetPack(ctx context.Context, id uuid.UUID) (*PackView, error)

	IngestDocument(ctx context.Context, packID uuid.UUID, title, text, sourceURI string) (steps.IngestWindowsOutput, error)
	IngestObject(ctx context.Context, packID uuid.UUID, title, key string) (steps.IngestWindowsOutput, error)

	Build(ctx context.Context, packID uuid.UUID, kind types.ArtifactKind, target int) (steps.ArtifactOutput, error)
	Extend(ctx context.Context, packID uuid.UUID, kind types.ArtifactKind, count int) (steps.ArtifactOutput, error)
	BuildAll(ctx context.Context, in steps.BuildAllInput) (steps.BuildAllOutput, error)

	GetArtifact(ctx context.Context, packID uuid.UUID, kind types.ArtifactKind) (*ArtifactView, error)
}

// StudyPackRepos groups the repositories the service reads and writes through.
type StudyPackRepos struct {
	Packs      packrepos.StudyPackRepo
	Documents  materialrepos.DocumentRepo
	Windows    materialrepos.WindowRepo
	Flashcards packrepos.FlashcardRepo
	Quizzes    packrepos.QuizRepo
	MindMaps   packrepos.MindMapRepo
}

// StudyPackClients are the external systems. LLM is required; the rest may be nil.
type StudyPackClients struct {
	LLM    openai.Client
	Locks  redislock.Locker
	Graph  *neo4jdb.Client
	Bucket gcp.TextBucket
}

type ArtifactSummary struct {
	Kind       types.ArtifactKind  `json:"kind"`
	InstanceID uuid.UUID           `json:"instance_id"`
	Count      int64               `json:"count"`
	Outcome    convergence.Outcome `json:"outcome"`
	Coverage   float64             `json:"coverage"`
	Degraded   bool                `json:"degraded"`
}

type PackView struct {
	Pack      *types.StudyPack   `json:"pack"`
	Documents []*types.Document  `json:"documents"`
	Artifacts []*ArtifactSummary `json:"artifacts"`
}

// ArtifactView is the live instance of one kind with its records. Only the
// slice matching Kind is populated.
type ArtifactView struct {
	ArtifactSummary
	Flashcards []*types.Flashcard   `json:"flashcards,omitempty"`
	QuizItems  []*types.QuizItem    `json:"quiz_items,omitempty"`
	Nodes      []*types.MindMapNode `json:"nodes,omitempty"`
}

type studyPackService struct {
	db      *gorm.DB
	log     *logger.Logger
	cfg     *config.Config
	repos   StudyPackRepos
	clients StudyPackClients
}

func NewStudyPackService(
	db *gorm.DB,
	baseLog *logger.Logger,
	cfg *config.Config,
	repos StudyPackRepos,
	clients StudyPackClients,
) StudyPackService {
	serviceLog := baseLog.With("service", "StudyPackService")
	return &studyPackService{
		db:      db,
		log:     serviceLog,
		cfg:     cfg,
		repos:   repos,
		clients: clients,
	}
}

func (s *studyPackService) generationDeps() steps.BuildAllDeps {
	return steps.BuildAllDeps{
		GenerationDeps: steps.GenerationDeps{
			DB:         s.db,
			Log:        s.log,
			LLM:        s.clients.LLM,
			Packs:      s.repos.Packs,
			Windows:    s.repos.Windows,
			Flashcards: s.repos.Flashcards,
			Quizzes:    s.repos.Quizzes,
			MindMaps:   s.repos.MindMaps,
			Graph:      s.clients.Graph,
			Config:     s.cfg,
		},
		Locks: s.clients.Locks,
	}
}

// =====================================
// Packs
// =====================================

func (s *studyPackService) CreatePack(ctx context.Context, title string) (*types.StudyPack, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apierr.New(http.StatusBadRequest, "missing_title", errors.New("title is required"))
	}
	pack := &types.StudyPack{Title: title}
	if err := s.repos.Packs.Create(dbctx.Context{Ctx: ctx}, pack); err != nil {
		s.log.Error("CreatePack failed", "error", err)
		return nil, err
	}
	s.log.Info("study pack created", "study_pack_id", pack.ID.String())
	return pack, nil
}

func (s *studyPackService) ListPacks(ctx context.Context, limit int) ([]*types.StudyPack, error) {
	return s.repos.Packs.List(dbctx.Context{Ctx: ctx}, limit)
}

func (s *studyPackService) GetPack(ctx context.Context, id uuid.UUID) (*PackView, error) {
	dbc := dbctx.Context{Ctx: ctx}
	pack, err := s.repos.Packs.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	docs, err := s.repos.Documents.ListByPack(dbc, id)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	view := &PackView{Pack: pack, Documents: docs, Artifacts: []*ArtifactSummary{}}
	for _, kind := range types.AllKinds() {
		sum, err := s.summary(dbc, id, kind)
		if errors.Is(err, types.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		view.Artifacts = append(view.Artifacts, sum)
	}
	return view, nil
}

// =====================================
// Ingestion
// =====================================

func (s *studyPackService) IngestDocument(ctx context.Context, packID uuid.UUID, title, text, sourceURI string) (steps.IngestWindowsOutput, error) {
	if strings.TrimSpace(title) == "" {
		return steps.IngestWindowsOutput{}, apierr.New(http.StatusBadRequest, "missing_title", errors.New("title is required"))
	}
	return steps.IngestWindows(ctx, steps.IngestWindowsDeps{
		DB:        s.db,
		Log:       s.log,
		Packs:     s.repos.Packs,
		Documents: s.repos.Documents,
		Windows:   s.repos.Windows,
		Chunking:  s.cfg.Chunking,
	}, steps.IngestWindowsInput{
		StudyPackID: packID,
		Title:       title,
		Text:        text,
		SourceURI:   sourceURI,
	})
}

// IngestObject reads extracted text from the bucket. The title defaults to
// the object's base name.
func (s *studyPackService) IngestObject(ctx context.Context, packID uuid.UUID, title, key string) (steps.IngestWindowsOutput, error) {
	if s.clients.Bucket == nil {
		return steps.IngestWindowsOutput{}, ErrBucketUnavailable
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return steps.IngestWindowsOutput{}, apierr.New(http.StatusBadRequest, "missing_key", errors.New("object key is required"))
	}
	if strings.TrimSpace(title) == "" {
		title = path.Base(key)
	}
	text, err := s.clients.Bucket.ReadText(ctx, key)
	if err != nil {
		return steps.IngestWindowsOutput{}, err
	}
	return s.IngestDocument(ctx, packID, title, text, "gs://"+key)
}

// =====================================
// Generation
// =====================================

func (s *studyPackService) Build(ctx context.Context, packID uuid.UUID, kind types.ArtifactKind, target int) (steps.ArtifactOutput, error) {
	if target < 0 {
		return steps.ArtifactOutput{Kind: kind}, apierr.New(http.StatusBadRequest, "invalid_target", fmt.Errorf("target must be >= 0 (got %d)", target))
	}
	out, err := steps.Build(ctx, s.generationDeps(), kind, steps.BuildInput{StudyPackID: packID, Target: target})
	s.logOutcome("build", packID, out, err)
	return out, err
}

func (s *studyPackService) Extend(ctx context.Context, packID uuid.UUID, kind types.ArtifactKind, count int) (steps.ArtifactOutput, error) {
	if count <= 0 {
		return steps.ArtifactOutput{Kind: kind}, apierr.New(http.StatusBadRequest, "invalid_count", fmt.Errorf("count must be > 0 (got %d)", count))
	}
	out, err := steps.Extend(ctx, s.generationDeps(), kind, steps.ExtendInput{StudyPackID: packID, Count: count})
	s.logOutcome("extend", packID, out, err)
	return out, err
}

func (s *studyPackService) BuildAll(ctx context.Context, in steps.BuildAllInput) (steps.BuildAllOutput, error) {
	out, err := steps.BuildAll(ctx, s.generationDeps(), in)
	for _, res := range out.Results {
		s.logOutcome("build_all", in.StudyPackID, res.Output, res.Err)
	}
	return out, err
}

func (s *studyPackService) logOutcome(op string, packID uuid.UUID, out steps.ArtifactOutput, err error) {
	if err != nil {
		s.log.Warn("artifact run failed", "op", op, "kind", string(out.Kind), "study_pack_id", packID.String(), "error", err)
		return
	}
	s.log.Info("artifact run finished",
		"op", op,
		"kind", string(out.Kind),
		"study_pack_id", packID.String(),
		"produced", out.Outcome.Produced,
		"inserted", out.Outcome.Inserted,
		"coverage", out.Outcome.Coverage(),
		"degraded", out.Outcome.Degraded(),
	)
}

// =====================================
// Reads
// =====================================

func (s *studyPackService) GetArtifact(ctx context.Context, packID uuid.UUID, kind types.ArtifactKind) (*ArtifactView, error) {
	dbc := dbctx.Context{Ctx: ctx}
	if _, err := s.repos.Packs.GetByID(dbc, packID); err != nil {
		return nil, err
	}
	sum, err := s.summary(dbc, packID, kind)
	if err != nil {
		return nil, err
	}
	view := &ArtifactView{ArtifactSummary: *sum}
	switch kind {
	case types.KindFlashcards:
		view.Flashcards, err = s.repos.Flashcards.ListCards(dbc, sum.InstanceID)
	case types.KindQuiz:
		view.QuizItems, err = s.repos.Quizzes.ListItems(dbc, sum.InstanceID)
	case types.KindMindMap:
		view.Nodes, err = s.repos.MindMaps.ListNodes(dbc, sum.InstanceID)
	}
	if err != nil {
		return nil, err
	}
	return view, nil
}

// summary returns types.ErrNotFound when the pack has no live instance of kind.
func (s *studyPackService) summary(dbc dbctx.Context, packID uuid.UUID, kind types.ArtifactKind) (*ArtifactSummary, error) {
	sum := &ArtifactSummary{Kind: kind}
	var raw datatypes.JSON
	switch kind {
	case types.KindFlashcards:
		deck, err := s.repos.Flashcards.GetLiveDeck(dbc, packID)
		if err != nil {
			return nil, err
		}
		sum.InstanceID, raw = deck.ID, deck.Outcome
		if sum.Count, err = s.repos.Flashcards.CountCards(dbc, deck.ID); err != nil {
			return nil, err
		}
	case types.KindQuiz:
		quiz, err := s.repos.Quizzes.GetLiveQuiz(dbc, packID)
		if err != nil {
			return nil, err
		}
		sum.InstanceID, raw = quiz.ID, quiz.Outcome
		if sum.Count, err = s.repos.Quizzes.CountItems(dbc, quiz.ID); err != nil {
			return nil, err
		}
	case types.KindMindMap:
		m, err := s.repos.MindMaps.GetLiveMap(dbc, packID)
		if err != nil {
			return nil, err
		}
		sum.InstanceID, raw = m.ID, m.Outcome
		nodes, err := s.repos.MindMaps.ListNodes(dbc, m.ID)
		if err != nil {
			return nil, err
		}
		sum.Count = int64(len(nodes))
	default:
		return nil, apierr.New(http.StatusBadRequest, "invalid_kind", fmt.Errorf("unknown artifact kind %q", kind))
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &sum.Outcome); err != nil {
			s.log.Warn("undecodable outcome", "kind", string(kind), "instance_id", sum.InstanceID.String(), "error", err)
		}
	}
	sum.Coverage = sum.Outcome.Coverage()
	sum.Degraded = sum.Outcome.Degraded()
	return sum, nil
}
