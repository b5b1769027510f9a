package pipeline

import (
	"context"
	"fmt"

	"github.com/feichai0017/document-monitor/internal/analysis"
	"github.com/feichai0017/document-monitor/internal/fetcher"
	"github.com/feichai0017/document-monitor/internal/models"
	"github.com/feichai0017/document-monitor/pkg/converters"
	"github.com/feichai0017/document-monitor/pkg/errors"
	"github.com/feichai0017/document-monitor/pkg/logger"
)

func (o *Orchestrator) initialize(ctx context.Context, r *docRun, documentID string) (string, error) {
	doc, err := o.store.GetDocument(ctx, documentID)
	if err != nil {
		return "", err
	}
	r.doc = doc
	r.prefix = storagePrefix(doc, o.now(), r.executionID)
	return fmt.Sprintf("Processing %s (%s)", doc.Name, doc.ApplicationName), nil
}

func (o *Orchestrator) download(ctx context.Context, r *docRun) (string, error) {
	res, err := o.fetcher.Fetch(ctx, r.doc.URL)
	if err != nil {
		return "", err
	}
	r.fetched = res
	return "Downloaded " + res.String(), nil
}

func (o *Orchestrator) extract(ctx context.Context, r *docRun) (string, error) {
	progress := o.ledger.StartProgress(ctx, r.executionID, models.StepExtraction, r.doc.Name)

	var segments []models.Segment
	err := o.pool.Do(ctx, func() error {
		var err error
		segments, err = o.extractor.Extract(ctx, r.fetched.Data, r.fetched.ContentType, progress.Report)
		return err
	})
	progress.Stop()
	if err != nil {
		return "", errors.Classify(err, errors.ErrExtractionFailed)
	}

	r.segments = analysis.Normalize(segments)
	ignored := 0
	for _, s := range r.segments {
		if s.Ignored {
			ignored++
		}
	}
	return fmt.Sprintf("Extracted %d segments (%d ignored)", len(r.segments), ignored), nil
}

func (o *Orchestrator) storeArtifacts(ctx context.Context, r *docRun) (string, error) {
	extracted, err := o.converter.EncodeSegments(r.segments)
	if err != nil {
		return "", errors.Mark(err, errors.ErrStorageFailed)
	}
	r.contentHash = converters.ContentHash(extracted)

	rawPath := r.prefix + "/original" + fetcher.ExtensionFor(r.fetched.ContentType)
	if _, err := o.blobs.Upload(ctx, rawPath, r.fetched.Data, r.fetched.ContentType); err != nil {
		return "", errors.Classify(err, errors.ErrStorageFailed)
	}
	textPath := r.prefix + "/extracted.json"
	if _, err := o.blobs.Upload(ctx, textPath, extracted, fetcher.ContentTypeJSON); err != nil {
		return "", errors.Classify(err, errors.ErrStorageFailed)
	}

	r.rawPath, r.textPath = rawPath, textPath
	return fmt.Sprintf("Stored %s and %s", rawPath, textPath), nil
}

func (o *Orchestrator) filter(ctx context.Context, r *docRun) (string, error) {
	matched, relevant := analysis.RelevantPages(r.segments, r.doc.Keywords)
	r.texts = analysis.SelectForEmbedding(r.segments, relevant)

	if relevant == nil {
		return fmt.Sprintf("No keywords configured, all pages relevant; %d segments selected", len(r.texts)), nil
	}
	return fmt.Sprintf("Matched pages %v, relevant pages %v; %d segments selected",
		matched.Sorted(), relevant.Sorted(), len(r.texts)), nil
}

func (o *Orchestrator) embed(ctx context.Context, r *docRun) (string, error) {
	r.vectors = [][]float32{}
	if len(r.texts) > 0 {
		err := o.pool.Do(ctx, func() error {
			var err error
			r.vectors, err = o.embedder.Embed(ctx, r.texts)
			return err
		})
		if err != nil {
			return "", errors.Classify(err, errors.ErrEmbeddingFailed)
		}
		if len(r.vectors) != len(r.texts) {
			return "", errors.Mark(errors.Newf("provider returned %d vectors for %d texts", len(r.vectors), len(r.texts)), errors.ErrEmbeddingFailed)
		}
	}

	data, err := o.converter.EncodeEmbeddings(r.vectors)
	if err != nil {
		return "", errors.Mark(err, errors.ErrEmbeddingFailed)
	}
	path := r.prefix + "/embeddings.json"
	if _, err := o.blobs.Upload(ctx, path, data, fetcher.ContentTypeJSON); err != nil {
		return "", errors.Classify(err, errors.ErrStorageFailed)
	}
	r.embedPath = path
	return fmt.Sprintf("Computed %d embeddings with %s", len(r.vectors), o.embedder.Name()), nil
}

func (o *Orchestrator) score(ctx context.Context, r *docRun) (string, error) {
	log := o.logger.FromContext(ctx)

	prev, err := o.store.LatestVersion(ctx, r.doc.ID)
	if errors.IsNotFound(err) {
		r.score = 0
		return "No previous version, score 0.0", nil
	}
	if err != nil {
		return "", err
	}

	data, err := o.blobs.Download(ctx, prev.EmbeddingsPath)
	if errors.IsNotFound(err) {
		log.Warn("Previous embeddings missing, scoring 0.0",
			logger.String("version_id", prev.ID),
			logger.String("path", prev.EmbeddingsPath),
		)
		r.score = 0
		return fmt.Sprintf("Embeddings of version %s missing, score 0.0", prev.ID), nil
	}
	if err != nil {
		log.Warn("Previous embeddings unavailable, scoring 0.0",
			logger.String("version_id", prev.ID),
			logger.String("path", prev.EmbeddingsPath),
			logger.Error(err),
		)
		r.score = 0
		return fmt.Sprintf("Embeddings of version %s unavailable, score 0.0", prev.ID), nil
	}

	previous, err := o.converter.DecodeEmbeddings(data)
	if err != nil {
		log.Warn("Previous embeddings unreadable, scoring 0.0", logger.String("version_id", prev.ID), logger.Error(err))
		r.score = 0
		return fmt.Sprintf("Embeddings of version %s unreadable, score 0.0", prev.ID), nil
	}

	r.score = analysis.ComputeSemanticSimilarity(r.vectors, previous)
	return fmt.Sprintf("Similarity to version %s: %.4f", prev.ID, r.score), nil
}
