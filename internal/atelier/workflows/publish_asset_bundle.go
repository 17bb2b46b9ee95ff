// Copyright © 2025 jackelyj <dreamerlyj@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
//

package workflows

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/innovationmech/atelier/internal/atelier/interfaces"
	"github.com/innovationmech/atelier/internal/atelier/model"
	"github.com/innovationmech/atelier/internal/atelier/security"
	"github.com/innovationmech/atelier/pkg/workflow"
)

// PublishAssetBundleInput publishes a product made of a cover image and a
// downloadable document.
type PublishAssetBundleInput struct {
	Title       string           `json:"title" validate:"required,max=255"`
	Description string           `json:"description" validate:"max=20000"`
	Price       string           `json:"price" validate:"required,numeric"`
	Currency    string           `json:"currency" validate:"required,len=3,uppercase"`
	Image       interfaces.Asset `json:"image"`
	Document    interfaces.Asset `json:"document"`
}

// Validate checks both files are present and the image is an image.
func (in *PublishAssetBundleInput) Validate() error {
	var errs []error
	if len(in.Image.Data) == 0 {
		errs = append(errs, errors.New("image is required"))
	} else if !strings.HasPrefix(in.Image.ContentType, "image/") {
		errs = append(errs, errors.New("image must have an image content type"))
	}
	if len(in.Document.Data) == 0 {
		errs = append(errs, errors.New("document is required"))
	}
	return errors.Join(errs...)
}

// ProductRecordResult is the aggregate result of a published bundle.
type ProductRecordResult struct {
	ProductID   uuid.UUID `json:"product_id"`
	ImageURL    string    `json:"image_url"`
	DocumentURL string    `json:"document_url"`
}

// PublishAssetBundleDefinition uploads the image, then the document, then
// persists the product. A failed persist deletes both uploads.
func (d Deps) PublishAssetBundleDefinition() *workflow.Definition {
	return &workflow.Definition{
		Name:     PublishAssetBundle,
		NewInput: func() interface{} { return &PublishAssetBundleInput{} },
		Steps: []workflow.Step{
			{
				Name:        "upload_image",
				Action:      d.uploadBundleAsset(func(in PublishAssetBundleInput) interfaces.Asset { return in.Image }, interfaces.AssetImage),
				Compensate:  d.deleteAsset,
				Timeout:     uploadTimeout,
				FailureCode: workflow.ErrCodeAssetUploadFailed,
				Capability:  security.CapabilityCatalogWrite,
			},
			{
				Name:        "upload_document",
				Action:      d.uploadBundleAsset(func(in PublishAssetBundleInput) interfaces.Asset { return in.Document }, interfaces.AssetDocument),
				Compensate:  d.deleteAsset,
				Timeout:     uploadTimeout,
				FailureCode: workflow.ErrCodeAssetUploadFailed,
			},
			{
				Name:        "persist_product",
				Action:      d.persistProduct,
				FailureCode: workflow.ErrCodeRecordPersistFailed,
			},
		},
		Summarize: func(sc *workflow.StepContext) (interface{}, error) {
			return workflow.ResultOf[ProductRecordResult](sc, "persist_product")
		},
	}
}

func (d Deps) uploadBundleAsset(pick func(PublishAssetBundleInput) interfaces.Asset, kind interfaces.AssetKind) workflow.Action {
	return func(ctx context.Context, sc *workflow.StepContext) (interface{}, error) {
		in, err := workflow.InputOf[PublishAssetBundleInput](sc)
		if err != nil {
			return nil, workflow.Permanent(err)
		}
		asset := pick(in)
		asset.Kind = kind
		return d.Assets.Upload(ctx, asset, publicID("products", sc, kind))
	}
}

// publicID is stable per instance and kind, so a retried upload replaces
// the earlier attempt instead of leaving an orphan.
func publicID(folder string, sc *workflow.StepContext, kind interfaces.AssetKind) string {
	return folder + "/" + sc.RecordID("asset/"+string(kind)).String()
}

func (d Deps) deleteAsset(ctx context.Context, _ *workflow.StepContext, result json.RawMessage) error {
	ref, err := workflow.Decode[interfaces.AssetReference](result)
	if err != nil {
		return err
	}
	if ref.PublicID == "" {
		return nil
	}
	return d.Assets.Delete(ctx, ref.PublicID, ref.Kind)
}

func (d Deps) persistProduct(ctx context.Context, sc *workflow.StepContext) (interface{}, error) {
	in, err := workflow.InputOf[PublishAssetBundleInput](sc)
	if err != nil {
		return nil, workflow.Permanent(err)
	}
	image, err := workflow.ResultOf[interfaces.AssetReference](sc, "upload_image")
	if err != nil {
		return nil, workflow.Permanent(err)
	}
	document, err := workflow.ResultOf[interfaces.AssetReference](sc, "upload_document")
	if err != nil {
		return nil, workflow.Permanent(err)
	}

	product := &model.Product{
		ID:               sc.RecordID("persist_product"),
		Title:            in.Title,
		Description:      in.Description,
		Price:            in.Price,
		Currency:         in.Currency,
		ImageURL:         image.URL,
		ImagePublicID:    image.PublicID,
		DocumentURL:      document.URL,
		DocumentPublicID: document.PublicID,
	}
	if err := d.Records.CreateProduct(ctx, product); err != nil {
		return nil, err
	}
	return ProductRecordResult{ProductID: product.ID, ImageURL: image.URL, DocumentURL: document.URL}, nil
}
