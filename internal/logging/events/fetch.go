package events

import "github.com/atomicstack/chatterm/internal/logging"

type FetchTracer struct{}

type IngestTracer struct{}

var (
	Fetch  = FetchTracer{}
	Ingest = IngestTracer{}
)

func (FetchTracer) Request(method, path string) {
	logging.Trace("fetch.request", map[string]interface{}{"method": method, "path": path})
}

func (FetchTracer) Users(kind string, keys []string) {
	logging.Trace("fetch.users", map[string]interface{}{"kind": kind, "keys": keys})
}

func (FetchTracer) Skip(kind string, pending int) {
	logging.Trace("fetch.users.skip", map[string]interface{}{"kind": kind, "pending": pending})
}

func (FetchTracer) Attachment(fileID, path string) {
	logging.Trace("fetch.attachment", map[string]interface{}{"file": fileID, "path": path})
}

func (IngestTracer) Install(channel string, ordered, total, mentions int) {
	logging.Trace("ingest.install", map[string]interface{}{
		"channel":  channel,
		"ordered":  ordered,
		"total":    total,
		"mentions": mentions,
	})
}
