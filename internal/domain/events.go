package domain

// Wire event names. These are part of the client protocol and must not change.
const (
	EventNewRoadEntry           = "new-road-entry"
	EventAdminNotification      = "admin-notification"
	EventPredictionComplete     = "prediction-complete"
	EventAnalysisComplete       = "analysis-complete"
	EventImageReviewed          = "image-reviewed"
	EventImageReviewedBroadcast = "image-reviewed-broadcast"
	EventFeedbackStatus         = "feedback_status"
	EventFeedbackReply          = "feedback_reply"
	EventNotification           = "notification"
	EventAuthSuccess            = "auth_success"
	EventAuthError              = "auth_error"
)

// Event is a realtime payload from the closed event set. Every server-to-client
// message is one of these types wrapped in an Envelope; call sites never build
// ad hoc payload shapes.
type Event interface {
	EventName() string
}

// Envelope is the wire format for server-to-client messages. Target is set
// only on broadcast-fallback copies of a direct send, so clients can filter
// messages not addressed to them.
type Envelope struct {
	Event  string `json:"event"`
	Target string `json:"target,omitempty"`
	Data   Event  `json:"data"`
}

// NewRoadEntry announces a freshly classified reportable upload to admins.
type NewRoadEntry struct {
	ReportID    string  `json:"reportId"`
	ImagePath   string  `json:"imagePath"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Address     string  `json:"address"`
	SubmittedBy string  `json:"submittedBy"`
}

func (NewRoadEntry) EventName() string { return EventNewRoadEntry }

// AdminNotification is a generic admin-facing alert.
type AdminNotification struct {
	Title    string `json:"title"`
	Message  string `json:"message"`
	ReportID string `json:"reportId,omitempty"`
}

func (AdminNotification) EventName() string { return EventAdminNotification }

// PredictionComplete tells a submitter their upload finished processing.
type PredictionComplete struct {
	ReportID   string `json:"reportId"`
	Outcome    string `json:"outcome"`
	Severity   string `json:"severity,omitempty"`
	Detections int    `json:"detections"`
}

func (PredictionComplete) EventName() string { return EventPredictionComplete }

// AnalysisComplete tells a submitter a saved analysis is available.
type AnalysisComplete struct {
	ReportID   string `json:"reportId"`
	Outcome    string `json:"outcome"`
	Severity   string `json:"severity,omitempty"`
	Detections int    `json:"detections"`
}

func (AnalysisComplete) EventName() string { return EventAnalysisComplete }

// ImageReviewed carries a completed review. Audience tags whether this copy
// was built for the submitter or for admins.
type ImageReviewed struct {
	ReportID          string `json:"reportId"`
	Status            string `json:"status"`
	Severity          string `json:"severity"`
	RecommendedAction string `json:"recommendedAction"`
	ReviewedBy        string `json:"reviewedBy"`
	Audience          string `json:"audience"`
	Broadcast         bool   `json:"-"`
}

func (e ImageReviewed) EventName() string {
	if e.Broadcast {
		return EventImageReviewedBroadcast
	}
	return EventImageReviewed
}

// FeedbackStatus notifies a feedback author of a status change.
type FeedbackStatus struct {
	FeedbackID string `json:"feedbackId"`
	Subject    string `json:"subject"`
	Status     string `json:"status"`
}

func (FeedbackStatus) EventName() string { return EventFeedbackStatus }

// FeedbackReply notifies a feedback author of a reply.
type FeedbackReply struct {
	FeedbackID string `json:"feedbackId"`
	Subject    string `json:"subject"`
	Reply      string `json:"reply"`
}

func (FeedbackReply) EventName() string { return EventFeedbackReply }

// Notification is the ad-hoc notify-by-identity payload.
type Notification struct {
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (Notification) EventName() string { return EventNotification }

// AuthSuccess acknowledges a successful authenticate call.
type AuthSuccess struct {
	Identity string `json:"identity"`
	Role     Role   `json:"role"`
	Message  string `json:"message"`
}

func (AuthSuccess) EventName() string { return EventAuthSuccess }

// AuthError reports a rejected authenticate call.
type AuthError struct {
	Message string `json:"message"`
}

func (AuthError) EventName() string { return EventAuthError }
