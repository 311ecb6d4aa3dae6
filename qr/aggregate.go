package qr

import (
	"log/slog"

	"github.com/helioscan/pacsbridge/dicom"
	"github.com/helioscan/pacsbridge/dicomerr"
	"github.com/helioscan/pacsbridge/metadata"
)

// FindOutcome is the aggregated result of draining a discovery stream.
// StreamErr is non-nil when the stream died before its terminal
// response; the session behind it must be aborted, not released.
type FindOutcome struct {
	Results   []map[string]interface{}
	Completed bool
	Failed    int
	Warning   int
	StreamErr error
}

// AggregateFind drains a discovery stream into structured records. Each
// pending response with an identifier is flattened into a keyword-keyed
// map with VR-aware coercion. Failure, warning, and cancel statuses are
// counted and logged but never stop the drain; the transport may still
// hold buffered responses behind them.
func AggregateFind(responses <-chan FindResponse, logger *slog.Logger) *FindOutcome {
	if logger == nil {
		logger = slog.Default()
	}

	outcome := &FindOutcome{Results: []map[string]interface{}{}}
	for response := range responses {
		if response.Err != nil {
			outcome.StreamErr = response.Err
		}
		category := dicomerr.CategorizeStatus(response.Status)
		switch category {
		case dicomerr.CategoryPending:
			if response.Identifier == nil {
				logger.Warn("Pending response without identifier, skipping")
				continue
			}
			outcome.Results = append(outcome.Results, flattenIdentifier(response.Identifier))
		case dicomerr.CategorySuccess:
			outcome.Completed = true
		case dicomerr.CategoryFailure:
			outcome.Failed++
			logger.Warn("Query response reported failure",
				"status", response.Status,
				"category", category)
		case dicomerr.CategoryWarning:
			outcome.Warning++
			logger.Warn("Query response reported warning", "status", response.Status)
		case dicomerr.CategoryCancel:
			logger.Info("Query canceled by peer", "status", response.Status)
		default:
			logger.Warn("Unrecognized query status, skipping", "status", response.Status)
		}
	}
	return outcome
}

// flattenIdentifier converts a response dataset into a flat map keyed by
// dictionary keyword, coercing every value. Fields without a dictionary
// keyword are keyed by their hex tag so nothing the peer sent is lost.
func flattenIdentifier(identifier *dicom.Dataset) map[string]interface{} {
	result := make(map[string]interface{}, len(identifier.Elements))
	for _, tag := range identifier.SortedTags() {
		key := dicom.KeywordForTag(tag)
		if key == "" {
			key = tag.Hex()
		}
		result[key] = metadata.Coerce(identifier.Elements[tag], metadata.SequenceAsMarker)
	}
	return result
}

// RetrieveOutcome is the aggregated result of draining a retrieval
// stream. Counter values reflect the last response that carried them.
// StreamErr follows the same contract as FindOutcome.StreamErr.
type RetrieveOutcome struct {
	Completed bool
	SubOps    SubOpCounters
	Failed    int
	Warning   int
	StreamErr error
}

// AggregateRetrieve drains a retrieval stream, tracking the peer's
// sub-operation counters. Full records arrive out of band through the
// session's store handler; this only follows the status side. Like the
// discovery aggregator it drains past failures.
func AggregateRetrieve(responses <-chan GetResponse, logger *slog.Logger) *RetrieveOutcome {
	if logger == nil {
		logger = slog.Default()
	}

	outcome := &RetrieveOutcome{}
	for response := range responses {
		if response.Err != nil {
			outcome.StreamErr = response.Err
		}
		if response.Counters != nil {
			outcome.SubOps = *response.Counters
		}

		category := dicomerr.CategorizeStatus(response.Status)
		switch category {
		case dicomerr.CategoryPending:
			logger.Debug("Retrieval in progress",
				"remaining", outcome.SubOps.Remaining,
				"completed", outcome.SubOps.Completed)
		case dicomerr.CategorySuccess:
			outcome.Completed = true
		case dicomerr.CategoryFailure:
			outcome.Failed++
			logger.Warn("Retrieval response reported failure", "status", response.Status)
		case dicomerr.CategoryWarning:
			outcome.Warning++
			logger.Warn("Retrieval response reported warning", "status", response.Status)
		case dicomerr.CategoryCancel:
			logger.Info("Retrieval canceled by peer", "status", response.Status)
		default:
			logger.Warn("Unrecognized retrieval status, skipping", "status", response.Status)
		}
	}
	return outcome
}
