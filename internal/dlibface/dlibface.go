// Package dlibface runs face detection and embedding in process with dlib.
// The real backend needs cgo and the dlib libraries and is only compiled with
// the "dlib" build tag; without it New reports that the backend is missing.
//
// Models directory must hold shape_predictor_5_face_landmarks.dat,
// dlib_face_recognition_resnet_model_v1.dat and, for CNN detection,
// mmod_human_face_detector.dat.
package dlibface

import "errors"

// Dimension is the width of dlib's face descriptor.
const Dimension = 128

// ErrUnavailable is returned by New in builds without the dlib tag.
var ErrUnavailable = errors.New("dlib backend not compiled in; rebuild with -tags dlib")

// Config selects the models and the detector.
type Config struct {
	ModelsDir string
	// UseCNN trades speed for accuracy on rotated or small faces.
	UseCNN bool
}
