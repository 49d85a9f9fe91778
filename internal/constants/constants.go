package constants

import "time"

var SessionConfig = struct {
	TTL            time.Duration
	CacheSize      int
	BusyTTL        time.Duration
	RecentCanned   int
	RecentProspect int
	ReportDelay    time.Duration
	KeyPrefix      string
	BusyKeyPrefix  string
}{
	TTL:            2 * time.Hour,          // 세션 보관 시간
	CacheSize:      1024,                   // 인메모리 세션 최대 개수
	BusyTTL:        2 * time.Minute,        // busy 플래그 안전 만료
	RecentCanned:   3,                      // 재사용 금지 canned 응답 개수
	RecentProspect: 3,                      // 반복 검사 대상 prospect 턴 수
	ReportDelay:    500 * time.Millisecond, // 종료 후 리포트 생성 지연
	KeyPrefix:      "pitchcoach:session:",
	BusyKeyPrefix:  "pitchcoach:busy:",
}

var ReplyValidation = struct {
	MinLength         int
	MinWordLength     int
	MaxSharedWords    int
	BannedPhrase      string
	PoorScoreCeiling  int
	MaxReplySentences int
}{
	MinLength:         10,
	MinWordLength:     4, // words longer than 3 characters
	MaxSharedWords:    3,
	BannedPhrase:      "How can I help you",
	PoorScoreCeiling:  3,
	MaxReplySentences: 2,
}

var CompletionDefaults = struct {
	OpenAIModel      string
	GeminiModel      string
	AnthropicModel   string
	MaxTokens        int
	Temperature      float64
	PresencePenalty  float64
	FrequencyPenalty float64
	HTTPTimeout      time.Duration
	MaxConcurrent    int64
}{
	OpenAIModel:      "gpt-4o-mini",
	GeminiModel:      "gemini-2.5-flash",
	AnthropicModel:   "claude-haiku-4-5-20251001",
	MaxTokens:        500,
	Temperature:      0.8,
	PresencePenalty:  0.3,
	FrequencyPenalty: 0.3,
	HTTPTimeout:      30 * time.Second,
	MaxConcurrent:    16,
}

var ReportConfig = struct {
	GoodAverage         float64
	CredibleTurn        int
	WeakChallenge       int
	MinTurns            int
	MinHistoryRecords   int
	HistoryLookbackSize int
}{
	GoodAverage:         6,
	CredibleTurn:        4,
	WeakChallenge:       3,
	MinTurns:            6,
	MinHistoryRecords:   3,
	HistoryLookbackSize: 20,
}

var RedisConfig = struct {
	ReadyTimeout time.Duration
}{
	ReadyTimeout: 5 * time.Second,
}

var CircuitBreakerConfig = struct {
	FailureThreshold    int
	ResetTimeout        time.Duration
	RateLimitTimeout    time.Duration
	HealthCheckInterval time.Duration
	HealthCheckTimeout  time.Duration
}{
	FailureThreshold:    3,                // 3회 연속 실패 시 Circuit OPEN
	ResetTimeout:        30 * time.Second, // 기본 재시도 대기 시간 (30초)
	RateLimitTimeout:    5 * time.Minute,  // 429 Rate Limit 전용 타임아웃
	HealthCheckInterval: 2 * time.Minute,  // Health Check 주기
	HealthCheckTimeout:  10 * time.Second, // Health Check 타임아웃 (10초)
}

var HistoryConfig = struct {
	DefaultLimit int
	MaxLimit     int
}{
	DefaultLimit: 20,
	MaxLimit:     100,
}

var WebSocketConfig = struct {
	WriteTimeout       time.Duration
	PongTimeout        time.Duration
	PingInterval       time.Duration
	MaxMessageSize     int64
	ReportPollInterval time.Duration
	ReportWaitTimeout  time.Duration
}{
	WriteTimeout:       10 * time.Second,
	PongTimeout:        60 * time.Second,
	PingInterval:       50 * time.Second, // PongTimeout 보다 짧아야 함
	MaxMessageSize:     16 * 1024,
	ReportPollInterval: 200 * time.Millisecond,
	ReportWaitTimeout:  45 * time.Second,
}

var AIInputLimits = struct {
	MaxPitchLength int
}{
	MaxPitchLength: 8000,
}
