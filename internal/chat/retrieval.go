package chat

import (
	"context"
	"time"

	"github.com/ibtisamdev/reva-sub001/internal/citation"
	"github.com/ibtisamdev/reva-sub001/internal/knowledge"
	"github.com/ibtisamdev/reva-sub001/pkg/logging"
)

// Retrieval is the knowledge context handed to a handler.
type Retrieval struct {
	Chunks  []knowledge.Chunk
	Sources []citation.SourceReference
	Context string
}

func NewRetrieval(chunks []knowledge.Chunk) Retrieval {
	return Retrieval{
		Chunks:  chunks,
		Sources: citation.SourcesFromChunks(chunks, true),
		Context: citation.FormatContext(chunks),
	}
}

func (r Retrieval) Empty() bool { return len(r.Chunks) == 0 }

// retrieve never fails: a missing index or a query error yields an empty
// retrieval.
func retrieve(ctx context.Context, index knowledge.Index, storeID, query string, topK int, logger logging.Logger) Retrieval {
	if index == nil {
		retrievalTotal.WithLabelValues("disabled").Inc()
		return NewRetrieval(nil)
	}
	start := time.Now()
	chunks, err := index.Query(ctx, storeID, query, topK)
	retrievalDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		retrievalTotal.WithLabelValues("error").Inc()
		if logger != nil {
			logger.WithError(err).WithField("store_id", storeID).Warn("Knowledge retrieval failed; continuing without context")
		}
		return NewRetrieval(nil)
	}
	if len(chunks) == 0 {
		retrievalTotal.WithLabelValues("empty").Inc()
	} else {
		retrievalTotal.WithLabelValues("hit").Inc()
	}
	return NewRetrieval(chunks)
}
