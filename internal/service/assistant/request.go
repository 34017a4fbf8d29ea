package assistant

import (
	"bytes"

	embedded "google.golang.org/genproto/googleapis/assistant/embedded/v1alpha2"

	assistantmodel "github.com/zhouzirui/ga-webserver/backend/internal/model/assistant"
)

// buildRequest 构造单次交换唯一的请求信封，调用方需持有 s.mu。
func (s *Session) buildRequest(textQuery string) *embedded.AssistRequest {
	config := &embedded.AssistConfig{
		Type: &embedded.AssistConfig_TextQuery{TextQuery: textQuery},
		AudioOutConfig: &embedded.AudioOutConfig{
			Encoding:         embedded.AudioOutConfig_LINEAR16,
			SampleRateHertz:  assistantmodel.AudioSampleRateHertz,
			VolumePercentage: assistantmodel.AudioVolumePercentage,
		},
		DialogStateIn: &embedded.DialogStateIn{
			LanguageCode: s.cfg.LanguageCode,
			// 首次调用为空字节序列
			ConversationState: bytes.Clone(s.conversationState),
		},
		DeviceConfig: &embedded.DeviceConfig{
			DeviceId:      s.cfg.DeviceID,
			DeviceModelId: s.cfg.DeviceModelID,
		},
	}

	return &embedded.AssistRequest{
		Type: &embedded.AssistRequest_Config{Config: config},
	}
}
