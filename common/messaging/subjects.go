package messaging

// Subjects follow {service}.{resource}.{event}.
const (
	SubjectInvestigationCreated   = "investigate.investigations.created"
	SubjectInvestigationUpdated   = "investigate.investigations.updated"
	SubjectInvestigationAnalyzed  = "investigate.investigations.analyzed"
	SubjectInvestigationEscalated = "investigate.investigations.escalated"

	// SubjectLinkRequests carries LinkEntities requests from upstream
	// detectors that should not block on the HTTP API.
	SubjectLinkRequests = "investigate.link.requests"
)

// QueueInvestigate is the queue group shared by investigate workers.
const QueueInvestigate = "investigate-workers"

// InvestigationSubjects lists every lifecycle subject, in emit order.
func InvestigationSubjects() []string {
	return []string{
		SubjectInvestigationCreated,
		SubjectInvestigationUpdated,
		SubjectInvestigationAnalyzed,
		SubjectInvestigationEscalated,
	}
}
