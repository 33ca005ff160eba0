package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/avolkov/docpipe/internal/core/domain"
	"github.com/avolkov/docpipe/internal/core/ports"
)

// classificationThreshold is the minimum top score required to accept the
// classifier's best match; anything at or below it becomes UNKNOWN.
const classificationThreshold = 0.5

type ClassifyFirstPageUseCase struct {
	store      ports.ObjectStore
	renderer   ports.PageRenderer
	detector   ports.TextDetector
	classifier ports.DocumentClassifier
}

func NewClassifyFirstPageUseCase(
	store ports.ObjectStore,
	renderer ports.PageRenderer,
	detector ports.TextDetector,
	classifier ports.DocumentClassifier,
) *ClassifyFirstPageUseCase {
	return &ClassifyFirstPageUseCase{
		store:      store,
		renderer:   renderer,
		detector:   detector,
		classifier: classifier,
	}
}

// ClassifyFirstPage emits one label decision for a trigger event. Policy: the
// first supported record in the batch is classified and the remainder is
// ignored; a trigger carries one logical document, extra records are event
// noise. Unsupported records are skipped with a log line only. Storage
// misses, render failures and service failures are fatal to the invocation
// and surface to the caller's retry, not retried here.
func (uc *ClassifyFirstPageUseCase) ClassifyFirstPage(ctx context.Context, ev domain.TriggerEvent) (domain.Classification, error) {
	for _, rec := range ev.Records {
		key := domain.DecodeEventKey(rec.Document.Key)
		if !domain.SupportedFile(key) {
			slog.Warn("skipping unsupported file type", "key", key)
			continue
		}

		payload, err := uc.store.Get(ctx, rec.Document.Bucket, key, rec.Document.Version)
		if err != nil {
			return domain.Classification{}, fmt.Errorf("fetch source object %s/%s: %w", rec.Document.Bucket, key, err)
		}

		image := payload
		if domain.FileExtension(key) == "pdf" {
			image, err = uc.renderer.RenderFirstPage(ctx, payload)
			if err != nil {
				return domain.Classification{}, fmt.Errorf("render first page of %s: %w", key, err)
			}
		}

		blocks, err := uc.detector.DetectText(ctx, image)
		if err != nil {
			return domain.Classification{}, fmt.Errorf("detect text: %w", err)
		}

		ranked, err := uc.classifier.Classify(ctx, domain.PlainText(blocks))
		if err != nil {
			return domain.Classification{}, fmt.Errorf("classify document: %w", err)
		}

		cls := domain.Classification{Label: domain.LabelUnknown}
		if len(ranked) > 0 {
			top := ranked[0]
			cls.Confidence = top.Score
			if top.Score > classificationThreshold {
				cls.Label = top.Label
			}
		}
		return cls, nil
	}

	return domain.Classification{Label: domain.LabelUnsupported}, nil
}
