// Package cvbridge plugs OpenCV implementations into the backend registry.
//
// Building with -tags withcv registers SIFT and ORB extractors, FLANN and
// brute-force matchers, the OpenCV RANSAC estimator, warpPerspective, blur
// and contour-based motion kernels, a VideoCapture opener and a preview
// window. Without the tag Register is a no-op and only the pure-Go
// backends are available.
package cvbridge
