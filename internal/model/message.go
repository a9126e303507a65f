package model

// WebSocket 종료 코드 (애플리케이션 정의)
const (
	CloseBadRequest      = 4000
	ClosePolicyViolation = 4001
	CloseNotFound        = 4004
)

// 인바운드 액션
const (
	ActionJoinSession = "joinSession"
	ActionAudioChunk  = "audioChunk"
	ActionLeave       = "leave"
)

// InboundMessage is the tagged envelope for every client frame. Unused fields
// stay zero depending on Action.
type InboundMessage struct {
	Action         string `json:"action"`
	SessionID      string `json:"sessionId,omitempty"`
	TargetLanguage string `json:"targetLanguage,omitempty"`
	// audioChunk fields
	AudioData  string `json:"audioData,omitempty"` // base64 PCM
	Timestamp  int64  `json:"timestamp,omitempty"` // epoch millis of first sample
	SampleRate int    `json:"sampleRate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
	Encoding   string `json:"encoding,omitempty"`
}

// SessionJoined 연결 수락/재확인 응답
type SessionJoined struct {
	Type         string `json:"type"` // "sessionJoined"
	SessionID    string `json:"sessionId"`
	ConnectionID string `json:"connectionId"`
	ServerTime   int64  `json:"serverTime"` // epoch millis
}

// TranslatedAudio notifies a listener that a translated chunk is ready.
// SequenceNumber equals the batch's first-frame timestamp and is monotonic per
// session; listeners reorder and deduplicate by it.
type TranslatedAudio struct {
	Type           string `json:"type"` // "translatedAudio"
	SessionID      string `json:"sessionId"`
	TargetLanguage string `json:"targetLanguage"`
	URL            string `json:"url"`
	Timestamp      int64  `json:"timestamp"`
	Duration       int64  `json:"duration"` // millis
	Transcript     string `json:"transcript"`
	SequenceNumber int64  `json:"sequenceNumber"`
}

// SessionEnded 세션 종료 알림
type SessionEnded struct {
	Type      string `json:"type"` // "sessionEnded"
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason"`
}

// ErrorMessage 애플리케이션 레벨 에러 프레임 (연결은 유지)
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Code    string `json:"code"`
	Message string `json:"message"`
}
