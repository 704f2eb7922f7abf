package infrastructure

import (
	"github.com/hibiken/asynq"

	"chronicle/server/jobs/domain"
	"chronicle/server/modules/pipeline"
)

func taskType(q domain.Queue, function string) string { return string(q) + ":" + function }

// BuildMux registers every post-processing job function (§4.I) plus the
// Speech-Detection Controller (§4.F) against the function names
// ConversationAdapter.EnqueuePostProcessingChain and
// RearmSpeechDetection dispatch under.
func BuildMux(handlers *pipeline.Handlers, speechDetect *SpeechDetectHandler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(taskType(domain.QueueTranscription, FuncTranscribeBatch), handlers.HandleTranscribeBatch)
	mux.HandleFunc(taskType(domain.QueueTranscription, FuncSpeakerRecognize), handlers.HandleSpeakerRecognize)
	mux.HandleFunc(taskType(domain.QueueDefault, FuncCrop), handlers.HandleCrop)
	mux.HandleFunc(taskType(domain.QueueMemory, FuncMemoryExtract), handlers.HandleMemoryExtract)
	mux.HandleFunc(taskType(domain.QueueDefault, FuncTitleSummary), handlers.HandleTitleSummary)
	mux.HandleFunc(taskType(domain.QueueDefault, FuncSpeechDetect), speechDetect.Handle)
	return mux
}
