package image

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/feichai0017/document-monitor/internal/models"
	"github.com/feichai0017/document-monitor/pkg/errors"
	"github.com/feichai0017/document-monitor/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	texts map[string]string
	err   error
}

func (f *fakeEngine) Name() string { return "fake" }
func (f *fakeEngine) Recognize(ctx context.Context, img []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if t, ok := f.texts[string(img)]; ok {
		return t, nil
	}
	return "", fmt.Errorf("unreadable image %q", img)
}
func (f *fakeEngine) Close() error { return nil }

func staticImages(images ...PageImage) PageImageSource {
	return func([]byte) ([]PageImage, error) { return images, nil }
}

func TestOCRProcessorGroupsByPage(t *testing.T) {
	engine := &fakeEngine{texts: map[string]string{
		"p1":  "Scanned heading\n\nFirst clause",
		"p2a": "Penalty applies",
		"p2b": "Annex",
	}}
	p := NewOCRProcessor(engine, 2, logger.NewTestLogger()).WithImageSource(staticImages(
		PageImage{Page: 1, Data: []byte("p1")},
		PageImage{Page: 2, Data: []byte("p2a")},
		PageImage{Page: 2, Data: []byte("p2b")},
		PageImage{Page: 3, Data: []byte("broken")},
	))

	var mu sync.Mutex
	var calls int
	segs, err := p.Process(context.Background(), nil, func(page, total int) {
		mu.Lock()
		calls++
		mu.Unlock()
		assert.Equal(t, 4, total)
	})
	require.NoError(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []models.Segment{
		{Page: 1, Text: "Scanned heading", Type: models.SegmentOCRParagraph},
		{Page: 1, Text: "First clause", Type: models.SegmentOCRParagraph},
		{Page: 2, Text: "Penalty applies", Type: models.SegmentOCRParagraph},
		{Page: 2, Text: "Annex", Type: models.SegmentOCRParagraph},
	}, segs)
}

func TestPageImagesStableWithinPage(t *testing.T) {
	build := func() []map[int]model.Image {
		img := func(page, obj int, body string) model.Image {
			return model.Image{Reader: strings.NewReader(body), PageNr: page, ObjNr: obj, FileType: "png"}
		}
		return []map[int]model.Image{
			{12: img(1, 12, "p1-c"), 4: img(1, 4, "p1-a"), 7: img(1, 7, "p1-b")},
			{30: img(2, 30, "p2-b"), 21: img(2, 21, "p2-a")},
		}
	}

	want := []string{"p1-a", "p1-b", "p1-c", "p2-a", "p2-b"}
	for i := 0; i < 20; i++ {
		images, err := pageImages(build())
		require.NoError(t, err)
		got := make([]string, 0, len(images))
		for _, im := range images {
			got = append(got, string(im.Data))
		}
		require.Equal(t, want, got)
	}

	engine := &fakeEngine{texts: map[string]string{"p1-a": "first", "p1-b": "second", "p1-c": "third"}}
	images, err := pageImages(build()[:1])
	require.NoError(t, err)
	p := NewOCRProcessor(engine, 3, logger.NewTestLogger()).WithImageSource(staticImages(images...))
	segments, err := p.Process(context.Background(), nil, nil)
	require.NoError(t, err)
	require.NotEmpty(t, segments)
	var joined []string
	for _, seg := range segments {
		joined = append(joined, seg.Text)
	}
	text := strings.Join(joined, "\n")
	assert.Less(t, strings.Index(text, "first"), strings.Index(text, "second"))
	assert.Less(t, strings.Index(text, "second"), strings.Index(text, "third"))
}

func TestOCRProcessorUnavailable(t *testing.T) {
	p := NewOCRProcessor(&fakeEngine{err: errors.Mark(errors.New("no tessdata"), ErrUnavailable)}, 1, logger.NewTestLogger()).
		WithImageSource(staticImages(PageImage{Page: 1, Data: []byte("x")}))

	_, err := p.Process(context.Background(), nil, nil)
	assert.True(t, errors.Is(err, ErrUnavailable))

	_, err = NewOCRProcessor(nil, 1, logger.NewTestLogger()).Process(context.Background(), nil, nil)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestOCRProcessorNoImages(t *testing.T) {
	p := NewOCRProcessor(&fakeEngine{}, 1, logger.NewTestLogger()).WithImageSource(staticImages())
	segs, err := p.Process(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, segs)
}

type fakeTextract struct{ out *textract.DetectDocumentTextOutput }

func (f *fakeTextract) DetectDocumentText(ctx context.Context, in *textract.DetectDocumentTextInput, _ ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error) {
	return f.out, nil
}

func line(text string, top, height float32) types.Block {
	return types.Block{
		BlockType:  types.BlockTypeLine,
		Text:       aws.String(text),
		Confidence: aws.Float32(99),
		Geometry:   &types.Geometry{BoundingBox: &types.BoundingBox{Top: top, Height: height}},
	}
}

func TestTextractParagraphBreaks(t *testing.T) {
	client := &fakeTextract{out: &textract.DetectDocumentTextOutput{Blocks: []types.Block{
		{BlockType: types.BlockTypePage},
		line("Heading", 0.10, 0.02),
		line("first line", 0.20, 0.02),
		line("second line", 0.225, 0.02),
	}}}
	e := NewTextractEngineWithClient(client, logger.NewTestLogger())

	text, err := e.Recognize(context.Background(), []byte("img"))
	require.NoError(t, err)
	assert.Equal(t, "Heading\n\nfirst line\nsecond line", text)
}

func TestAdaptiveThresholdBinarises(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetGray(x, y, color.Gray{Y: 230})
		}
	}
	img.SetGray(4, 4, color.Gray{Y: 10})

	out, err := NewAdaptiveThresholdProcessor(5, 2).Process(img)
	require.NoError(t, err)
	g := out.(*image.Gray)
	assert.Equal(t, uint8(0), g.GrayAt(4, 4).Y)
	assert.Equal(t, uint8(255), g.GrayAt(0, 0).Y)
}
