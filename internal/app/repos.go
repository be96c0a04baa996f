package app

import (
	"gorm.io/gorm"

	materialrepos "github.com/yungbote/neurobridge-studygen/internal/data/repos/materials"
	packrepos "github.com/yungbote/neurobridge-studygen/internal/data/repos/studypack"
	"github.com/yungbote/neurobridge-studygen/internal/platform/logger"
	"github.com/yungbote/neurobridge-studygen/internal/services"
)

func wireRepos(db *gorm.DB, log *logger.Logger) services.StudyPackRepos {
	log.Info("Wiring repos...")
	return services.StudyPackRepos{
		Packs:      packrepos.NewStudyPackRepo(db, log),
		Documents:  materialrepos.NewDocumentRepo(db, log),
		Windows:    materialrepos.NewWindowRepo(db, log),
		Flashcards: packrepos.NewFlashcardRepo(db, log),
		Quizzes:    packrepos.NewQuizRepo(db, log),
		MindMaps:   packrepos.NewMindMapRepo(db, log),
	}
}
