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
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/innovationmech/atelier/internal/atelier/interfaces"
	"github.com/innovationmech/atelier/internal/atelier/model"
	"github.com/innovationmech/atelier/internal/atelier/security"
	"github.com/innovationmech/atelier/pkg/workflow"
)

// PublishArticleInput publishes an editorial article with an optional cover.
type PublishArticleInput struct {
	Title     string            `json:"title" validate:"required,max=255"`
	Body      string            `json:"body" validate:"required"`
	Image     *interfaces.Asset `json:"image,omitempty"`
	Published bool              `json:"published"`
}

// Validate checks the optional cover is an image.
func (in *PublishArticleInput) Validate() error {
	if in.Image == nil {
		return nil
	}
	if len(in.Image.Data) == 0 || !strings.HasPrefix(in.Image.ContentType, "image/") {
		return errors.New("cover must be a non-empty image")
	}
	return nil
}

// ArticleResult is the aggregate result of a published article.
type ArticleResult struct {
	ArticleID uuid.UUID `json:"article_id"`
	ImageURL  string    `json:"image_url,omitempty"`
}

// PublishArticleDefinition uploads the cover when present and persists the article.
func (d Deps) PublishArticleDefinition() *workflow.Definition {
	return &workflow.Definition{
		Name:     PublishArticle,
		NewInput: func() interface{} { return &PublishArticleInput{} },
		Steps: []workflow.Step{
			{
				Name:        "upload_image",
				Action:      d.uploadCover,
				Compensate:  d.deleteAsset,
				Timeout:     uploadTimeout,
				FailureCode: workflow.ErrCodeAssetUploadFailed,
				Capability:  security.CapabilityContentWrite,
			},
			{
				Name:        "persist_article",
				Action:      d.persistArticle,
				FailureCode: workflow.ErrCodeRecordPersistFailed,
			},
		},
		Summarize: func(sc *workflow.StepContext) (interface{}, error) {
			return workflow.ResultOf[ArticleResult](sc, "persist_article")
		},
	}
}

func (d Deps) uploadCover(ctx context.Context, sc *workflow.StepContext) (interface{}, error) {
	in, err := workflow.InputOf[PublishArticleInput](sc)
	if err != nil {
		return nil, workflow.Permanent(err)
	}
	if in.Image == nil {
		return interfaces.AssetReference{}, nil
	}
	asset := *in.Image
	asset.Kind = interfaces.AssetImage
	return d.Assets.Upload(ctx, asset, publicID("articles", sc, asset.Kind))
}

func (d Deps) persistArticle(ctx context.Context, sc *workflow.StepContext) (interface{}, error) {
	in, err := workflow.InputOf[PublishArticleInput](sc)
	if err != nil {
		return nil, workflow.Permanent(err)
	}
	cover, err := workflow.ResultOf[interfaces.AssetReference](sc, "upload_image")
	if err != nil {
		return nil, workflow.Permanent(err)
	}

	article := &model.Article{
		ID:            sc.RecordID("persist_article"),
		Title:         in.Title,
		Body:          in.Body,
		ImageURL:      cover.URL,
		ImagePublicID: cover.PublicID,
		Published:     in.Published,
	}
	if err := d.Records.CreateArticle(ctx, article); err != nil {
		return nil, err
	}
	return ArticleResult{ArticleID: article.ID, ImageURL: cover.URL}, nil
}
