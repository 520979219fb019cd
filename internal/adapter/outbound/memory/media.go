package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/portraitlab/server/internal/model"
	"github.com/portraitlab/server/internal/port/outbound"
)

// uploadedImageAdapter implements outbound.UploadedImageDatabasePort.
type uploadedImageAdapter struct {
	store *Store
}

// NewUploadedImageAdapter creates a new in-memory uploaded image adapter.
func NewUploadedImageAdapter(store *Store) outbound.UploadedImageDatabasePort {
	return &uploadedImageAdapter{store: store}
}

func (a *uploadedImageAdapter) Create(ctx context.Context, image *model.UploadedImage) error {
	return a.store.view(ctx, func(st *state) error {
		if image.ID == uuid.Nil {
			image.ID = uuid.New()
		}
		image.CreatedAt = a.store.now()
		st.uploads[image.ID] = *image
		return nil
	})
}

func (a *uploadedImageAdapter) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*model.UploadedImage, error) {
	var out []*model.UploadedImage
	err := a.store.view(ctx, func(st *state) error {
		out = findUploads(st, ids)
		return nil
	})
	return out, err
}

func (a *uploadedImageAdapter) LockByIDs(ctx context.Context, ids []uuid.UUID) ([]*model.UploadedImage, error) {
	var out []*model.UploadedImage
	err := a.store.view(ctx, func(st *state) error {
		if err := a.store.fault("uploads.lock"); err != nil {
			return err
		}
		out = findUploads(st, ids)
		return nil
	})
	return out, err
}

func (a *uploadedImageAdapter) AttachToTraining(ctx context.Context, ids []uuid.UUID, trainingID uuid.UUID) (int64, error) {
	var n int64
	err := a.store.view(ctx, func(st *state) error {
		if err := a.store.fault("uploads.attach"); err != nil {
			return err
		}
		for _, id := range ids {
			img, ok := st.uploads[id]
			if !ok || img.TrainingID != nil {
				continue
			}
			tid := trainingID
			img.TrainingID = &tid
			st.uploads[id] = img
			n++
		}
		return nil
	})
	return n, err
}

func findUploads(st *state, ids []uuid.UUID) []*model.UploadedImage {
	out := make([]*model.UploadedImage, 0, len(ids))
	for _, id := range ids {
		if img, ok := st.uploads[id]; ok {
			out = append(out, &img)
		}
	}
	return out
}

// generatedImageAdapter implements outbound.GeneratedImageDatabasePort.
type generatedImageAdapter struct {
	store *Store
}

// NewGeneratedImageAdapter creates a new in-memory generated image adapter.
func NewGeneratedImageAdapter(store *Store) outbound.GeneratedImageDatabasePort {
	return &generatedImageAdapter{store: store}
}

func (a *generatedImageAdapter) Create(ctx context.Context, image *model.GeneratedImage) error {
	return a.store.view(ctx, func(st *state) error {
		if err := a.store.fault("generated.create"); err != nil {
			return err
		}
		if image.ID == uuid.Nil {
			image.ID = uuid.New()
		}
		image.CreatedAt = a.store.now()
		st.generated = append(st.generated, *image)
		return nil
	})
}

func (a *generatedImageAdapter) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*model.GeneratedImage, error) {
	var out []*model.GeneratedImage
	err := a.store.view(ctx, func(st *state) error {
		for i := range st.generated {
			if st.generated[i].UserID == userID {
				img := st.generated[i]
				out = append(out, &img)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

// Compile-time checks
var (
	_ outbound.UploadedImageDatabasePort  = (*uploadedImageAdapter)(nil)
	_ outbound.GeneratedImageDatabasePort = (*generatedImageAdapter)(nil)
)
