package handler

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes wires all wizard endpoints onto the router
func RegisterRoutes(r *gin.Engine, wizard *WizardHandler, health *HealthHandler) {
	r.GET("/health", health.GetHealth)

	v1 := r.Group("/api/v1/wizard")
	{
		v1.POST("/start", wizard.PostWizardStart)

		subject := v1.Group("/:subjectId")
		{
			subject.GET("/session", wizard.GetWizardSession)
			subject.POST("/resume", wizard.PostWizardResume)
			subject.DELETE("/draft", wizard.DeleteWizardDraft)
			subject.POST("/reading", wizard.PostWizardReading)
			subject.POST("/next", wizard.PostWizardNext)
			subject.POST("/skip", wizard.PostWizardSkip)
			subject.POST("/back", wizard.PostWizardBack)
			subject.PUT("/review/notes", wizard.PutWizardReviewNotes)
			subject.POST("/submit", wizard.PostWizardSubmit)
			subject.POST("/schedule", wizard.PostWizardSchedule)
			subject.POST("/schedule/skip", wizard.PostWizardScheduleSkip)
			subject.POST("/escalate", wizard.PostWizardEscalate)
			subject.POST("/dictation", wizard.PostWizardDictation)
			subject.POST("/dictation/cancel", wizard.PostWizardDictationCancel)
		}

		v1.POST("/guidance/speak", wizard.PostWizardGuidanceSpeak)
	}
}
