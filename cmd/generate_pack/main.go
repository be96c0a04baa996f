// Command generate_pack ingests text into a study pack and builds its
// artifacts without going through HTTP.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-studygen/internal/app"
	types "github.com/yungbote/neurobridge-studygen/internal/domain/studypack"
	"github.com/yungbote/neurobridge-studygen/internal/modules/studypack/steps"
)

type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }
func (l *stringList) Set(v string) error {
	v = strings.TrimSpace(v)
	if v != "" {
		*l = append(*l, v)
	}
	return nil
}

type kindSummary struct {
	InstanceID string  `json:"instance_id,omitempty"`
	State      string  `json:"state,omitempty"`
	Target     int     `json:"target,omitempty"`
	Produced   int     `json:"produced"`
	Coverage   float64 `json:"coverage"`
	Degraded   bool    `json:"degraded"`
	Error      string  `json:"error,omitempty"`
}

func main() {
	var (
		files, keys stringList
		packFlag    string
		title       string
		kindsFlag   string
		flashcards  int
		quiz        int
		mindmap     int
	)
	flag.Var(&files, "file", "plain text file to ingest (repeatable)")
	flag.Var(&keys, "gcs-key", "object key in GCS_TEXT_BUCKET to ingest (repeatable)")
	flag.StringVar(&packFlag, "pack", "", "existing study_pack_id; a new pack is created when empty")
	flag.StringVar(&title, "title", "", "title for a new pack")
	flag.StringVar(&kindsFlag, "kinds", "flashcards,quiz,mindmap", "comma separated artifact kinds to build")
	flag.IntVar(&flashcards, "flashcards", 0, "flashcard target (0 uses config)")
	flag.IntVar(&quiz, "quiz", 0, "quiz item target (0 uses config)")
	flag.IntVar(&mindmap, "mindmap", 0, "mind map node target (0 uses config)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx)
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()
	svc := application.Services.StudyPack

	var packID uuid.UUID
	if strings.TrimSpace(packFlag) != "" {
		packID, err = uuid.Parse(strings.TrimSpace(packFlag))
		if err != nil {
			fail(application, "invalid -pack: %v", err)
		}
	} else {
		if strings.TrimSpace(title) == "" && len(files) > 0 {
			title = strings.TrimSuffix(filepath.Base(files[0]), filepath.Ext(files[0]))
		}
		pack, err := svc.CreatePack(ctx, title)
		if err != nil {
			fail(application, "create pack: %v", err)
		}
		packID = pack.ID
		fmt.Printf("created study_pack_id=%s\n", packID)
	}

	for _, path := range files {
		raw, err := os.ReadFile(path)
		if err != nil {
			fail(application, "read %s: %v", path, err)
		}
		out, err := svc.IngestDocument(ctx, packID, filepath.Base(path), string(raw), "file://"+path)
		if err != nil {
			fail(application, "ingest %s: %v", path, err)
		}
		fmt.Printf("ingested %s windows=%d reused=%t\n", path, out.WindowCount, out.Reused)
	}
	for _, key := range keys {
		out, err := svc.IngestObject(ctx, packID, "", key)
		if err != nil {
			fail(application, "ingest gs object %s: %v", key, err)
		}
		fmt.Printf("ingested %s windows=%d reused=%t\n", key, out.WindowCount, out.Reused)
	}

	in := steps.BuildAllInput{
		StudyPackID: packID,
		Targets: map[types.ArtifactKind]int{
			types.KindFlashcards: flashcards,
			types.KindQuiz:       quiz,
			types.KindMindMap:    mindmap,
		},
	}
	for _, raw := range strings.Split(kindsFlag, ",") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		kind, err := types.ParseKind(raw)
		if err != nil {
			fail(application, "%v", err)
		}
		in.Kinds = append(in.Kinds, kind)
	}

	res, buildErr := svc.BuildAll(ctx, in)
	summary := map[types.ArtifactKind]kindSummary{}
	for kind, r := range res.Results {
		s := kindSummary{}
		if r.Err != nil {
			s.Error = r.Err.Error()
		} else {
			s.InstanceID = r.Output.InstanceID.String()
			s.State = r.Output.Outcome.State
			s.Target = r.Output.Outcome.Target
			s.Produced = r.Output.Outcome.Produced
			s.Coverage = r.Output.Outcome.Coverage()
			s.Degraded = r.Output.Outcome.Degraded()
		}
		summary[kind] = s
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(map[string]any{"study_pack_id": packID.String(), "artifacts": summary})

	if buildErr != nil {
		application.Close()
		os.Exit(2)
	}
}

func fail(application *app.App, format string, args ...any) {
	fmt.Printf(format+"\n", args...)
	application.Close()
	os.Exit(1)
}
