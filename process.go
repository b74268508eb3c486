package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"strings"

	"github.com/nvr-ai/go-cec/inference"
	"github.com/nvr-ai/go-cec/inference/segmenters"
	"github.com/nvr-ai/go-cec/models/postprocess"
	"github.com/nvr-ai/go-cec/store"
	"github.com/nvr-ai/go-cec/util"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

var (
	boxColor  = color.RGBA{R: 0, G: 255, B: 0, A: 0}
	maskColor = color.RGBA{R: 255, G: 0, B: 255, A: 0}
)

// processor runs the engine over input images and writes annotated copies.
type processor struct {
	engine    *inference.Engine
	store     *store.Store
	classes   []string
	outputDir string
	segment   bool
	log       logrus.FieldLogger
	out       *json.Encoder
}

// processFile detects objects in the image at path. When checkPath is set the
// objects are reconciled against the check image.
func (p *processor) processFile(ctx context.Context, path, checkPath string) error {
	mat, img, err := readImage(path)
	if err != nil {
		return err
	}
	defer mat.Close()

	var set postprocess.Set
	if checkPath == "" {
		set, err = p.engine.Detect(ctx, img, p.classes)
	} else {
		checkMat, check, readErr := readImage(checkPath)
		if readErr != nil {
			return readErr
		}
		checkMat.Close()
		set, err = p.engine.DetectPair(ctx, img, check, p.classes)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	return p.emit(ctx, path, checkPath, &mat, img, set)
}

// processDirectory detects objects in every image of dir. Failures on one
// image are logged and do not stop the others.
func (p *processor) processDirectory(ctx context.Context, dir string) error {
	files, err := util.LoadImageFiles(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no images found in %s", dir)
	}

	failed := 0
	for _, file := range files {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := p.processImageFile(ctx, file); err != nil {
			failed++
			p.log.WithError(err).WithField("image", file.Path).Error("failed to process image")
		}
	}
	p.log.WithFields(logrus.Fields{
		"images": len(files),
		"failed": failed,
	}).Info("processed directory")
	return nil
}

func (p *processor) processImageFile(ctx context.Context, file util.ImageFile) error {
	mat, err := gocv.IMDecode(file.Data, gocv.IMReadColor)
	if err != nil {
		return fmt.Errorf("error decoding image: %w", err)
	}
	defer mat.Close()
	if mat.Empty() {
		return fmt.Errorf("error decoding image: %s", file.Path)
	}
	img, err := mat.ToImage()
	if err != nil {
		return fmt.Errorf("error converting image: %w", err)
	}

	set, err := p.engine.Detect(ctx, img, p.classes)
	if err != nil {
		return err
	}
	return p.emit(ctx, file.Path, "", &mat, img, set)
}

// emit segments, annotates, stores and prints the objects of one image.
func (p *processor) emit(
	ctx context.Context,
	path, checkPath string,
	mat *gocv.Mat,
	img image.Image,
	set postprocess.Set,
) error {
	res := result{Image: path, Check: checkPath, Objects: set}

	if p.segment {
		masks, err := p.engine.Segment(ctx, img, set)
		var cfgErr *segmenters.ConfigurationError
		switch {
		case errors.As(err, &cfgErr):
			p.log.WithError(err).Warn("skipping segmentation")
		case err != nil:
			return fmt.Errorf("%s: %w", path, err)
		default:
			res.Masks = len(masks)
			drawMasks(mat, masks)
		}
	}

	drawObjects(mat, set)
	res.Output = outputPath(p.outputDir, path)
	if ok := gocv.IMWrite(res.Output, *mat); !ok {
		return fmt.Errorf("error writing image: %s", res.Output)
	}

	if p.store != nil {
		id, err := p.store.SaveRun(ctx, store.Run{
			Image:      path,
			CheckImage: checkPath,
			Classes:    p.classes,
			Objects:    set,
		})
		if err != nil {
			return err
		}
		res.Run = id.String()
	}

	return p.out.Encode(res)
}

// drawObjects draws a labelled rectangle for each object.
func drawObjects(mat *gocv.Mat, set postprocess.Set) {
	for _, o := range set {
		rect := o.Box.Rectangle()
		gocv.Rectangle(mat, rect, boxColor, 2)
		label := fmt.Sprintf("%s %.2f", o.ClassName, o.Confidence)
		gocv.PutText(mat, label, image.Pt(rect.Min.X, rect.Min.Y-5),
			gocv.FontHersheyPlain, 1.2, boxColor, 2)
	}
}

// drawMasks outlines each mask.
func drawMasks(mat *gocv.Mat, masks []*image.Gray) {
	for _, mask := range masks {
		m, err := gocv.ImageGrayToMatGray(mask)
		if err != nil {
			continue
		}
		contours := gocv.FindContours(m, gocv.RetrievalExternal, gocv.ChainApproxSimple)
		gocv.DrawContours(mat, contours, -1, maskColor, 2)
		contours.Close()
		m.Close()
	}
}

// outputPath returns where the annotated copy of path is written.
func outputPath(dir, path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return filepath.Join(dir, strings.TrimSuffix(base, ext)+"_detections"+ext)
}
