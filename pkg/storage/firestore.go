package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/klausv/battopt/pkg/log"
	"github.com/klausv/battopt/pkg/types"
	"github.com/levenlabs/go-lflag"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreProvider implements the Database interface using Google Cloud
// Firestore. Runs live in the "runs" collection; each run document holds the
// latest state and a "steps" sub-collection of applied decisions.
type FirestoreProvider struct {
	client    *firestore.Client
	projectID string
	database  string
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *FirestoreProvider) runDoc(runID string) (*firestore.DocumentRef, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}
	return f.client.Collection("runs").Doc(runID), nil
}

// SaveState stores the run's current battery state as a JSON blob.
func (f *FirestoreProvider) SaveState(ctx context.Context, runID string, state types.BatteryState) error {
	jsonBytes, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	doc, err := f.runDoc(runID)
	if err != nil {
		return err
	}
	_, err = doc.Set(ctx, map[string]interface{}{
		"json":    string(jsonBytes),
		"updated": time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to save state for run %s: %w", runID, err)
	}
	return nil
}

// GetState retrieves the run's latest battery state.
func (f *FirestoreProvider) GetState(ctx context.Context, runID string) (types.BatteryState, error) {
	doc, err := f.runDoc(runID)
	if err != nil {
		return types.BatteryState{}, err
	}
	snap, err := doc.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return types.BatteryState{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return types.BatteryState{}, fmt.Errorf("failed to fetch state for run %s: %w", runID, err)
	}

	val, err := snap.DataAt("json")
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "run doc missing json", slog.String("runID", runID))
		return types.BatteryState{}, fmt.Errorf("run %s document missing 'json' field: %w", runID, err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, "run doc json not string", slog.String("runID", runID))
		return types.BatteryState{}, fmt.Errorf("run %s 'json' field is not a string", runID)
	}

	var s types.BatteryState
	if err := json.Unmarshal([]byte(jsonStr), &s); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal state", slog.String("runID", runID), slog.Any("err", err))
		return types.BatteryState{}, fmt.Errorf("failed to unmarshal state for run %s: %w", runID, err)
	}
	return s, nil
}

// InsertStep adds an applied step record to the run's "steps" sub-collection.
// The document ID is the RFC3339 timestamp for efficient range queries.
func (f *FirestoreProvider) InsertStep(ctx context.Context, runID string, rec types.StepRecord) error {
	if rec.Timestamp.IsZero() {
		return fmt.Errorf("step record missing timestamp")
	}
	jsonBytes, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal step: %w", err)
	}

	doc, err := f.runDoc(runID)
	if err != nil {
		return err
	}
	// Use RFC3339 as document ID for lexicographic ordering and efficient range queries
	docID := rec.Timestamp.UTC().Format(time.RFC3339)
	_, err = doc.Collection("steps").Doc(docID).Set(ctx, map[string]interface{}{
		"json":      string(jsonBytes),
		"timestamp": rec.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to insert step: %w", err)
	}
	return nil
}

// GetSteps retrieves step records within the specified time range.
// Uses document ID range queries for efficient filtering without reading all documents.
func (f *FirestoreProvider) GetSteps(ctx context.Context, runID string, start, end time.Time) ([]types.StepRecord, error) {
	doc, err := f.runDoc(runID)
	if err != nil {
		return nil, err
	}
	coll := doc.Collection("steps")

	startDocID := start.UTC().Format(time.RFC3339)
	endDocID := end.UTC().Format(time.RFC3339)
	iter := coll.
		Where(firestore.DocumentID, ">=", coll.Doc(startDocID)).
		Where(firestore.DocumentID, "<", coll.Doc(endDocID)).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var steps []types.StepRecord
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating steps: %w", err)
		}

		val, err := snap.DataAt("json")
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "step doc missing json", slog.String("docID", snap.Ref.ID), slog.String("runID", runID), slog.Any("err", err))
			return nil, fmt.Errorf("step document %s missing 'json' field: %w", snap.Ref.ID, err)
		}
		jsonStr, ok := val.(string)
		if !ok {
			log.Ctx(ctx).WarnContext(ctx, "step doc json not string", slog.String("docID", snap.Ref.ID), slog.String("runID", runID))
			return nil, fmt.Errorf("step document %s 'json' field is not string", snap.Ref.ID)
		}

		var rec types.StepRecord
		if err := json.Unmarshal([]byte(jsonStr), &rec); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal step", slog.String("docID", snap.Ref.ID), slog.String("runID", runID), slog.Any("err", err))
			return nil, fmt.Errorf("failed to unmarshal step (id=%s): %w", snap.Ref.ID, err)
		}
		steps = append(steps, rec)
	}
	return steps, nil
}

// GetLatestStepTime retrieves the timestamp of the last stored step record.
func (f *FirestoreProvider) GetLatestStepTime(ctx context.Context, runID string) (time.Time, error) {
	doc, err := f.runDoc(runID)
	if err != nil {
		return time.Time{}, err
	}

	// firestore automatically creates indexes for top-level fields
	iter := doc.Collection("steps").
		OrderBy("timestamp", firestore.Desc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if err == iterator.Done {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get latest step doc: %w", err)
	}

	ts, err := time.Parse(time.RFC3339, snap.Ref.ID)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid step doc id %s: %w", snap.Ref.ID, err)
	}
	return ts, nil
}

// ListRuns retrieves the IDs of all stored runs.
func (f *FirestoreProvider) ListRuns(ctx context.Context) ([]string, error) {
	iter := f.client.Collection("runs").Documents(ctx)
	defer iter.Stop()

	var runs []string
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating runs: %w", err)
		}
		runs = append(runs, snap.Ref.ID)
	}
	return runs, nil
}
