package assistant

import "time"

// SessionConfig 会话身份与调用预算，构造后不可变。
type SessionConfig struct {
	LanguageCode  string        `json:"languageCode"`
	DeviceModelID string        `json:"deviceModelId"`
	DeviceID      string        `json:"deviceId"`
	Deadline      time.Duration `json:"deadline"`
}

// Audio output is suppressed for the text-only client.
const (
	AudioSampleRateHertz  = 16000
	AudioVolumePercentage = 0
)
