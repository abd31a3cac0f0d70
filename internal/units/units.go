// Package units provides the optical unit conversions shared by the PSF
// cache, the ground-truth engine and the kernel fitter.
package units

import "math"

// EyeDegreeMicrons is the retinal distance, in micrometres, subtended by one
// degree of visual angle.
const EyeDegreeMicrons = 288.0

// Dioptres converts a distance in metres to dioptres. Non-positive and
// infinite distances map to 0 (optical infinity).
func Dioptres(depthMeters float64) float64 {
	if depthMeters <= 0 || math.IsInf(depthMeters, 1) {
		return 0
	}
	return 1.0 / depthMeters
}

// Meters converts dioptres back to a distance. Zero dioptres is +Inf.
func Meters(dioptres float64) float64 {
	if dioptres == 0 {
		return math.Inf(1)
	}
	return 1.0 / dioptres
}

// Radians converts degrees to radians.
func Radians(deg float64) float64 { return deg * math.Pi / 180.0 }

// Degrees converts radians to degrees.
func Degrees(rad float64) float64 { return rad * 180.0 / math.Pi }

// MicronsToDegrees converts a retinal blur size to visual angle.
func MicronsToDegrees(um float64) float64 { return um / EyeDegreeMicrons }

// DegreesToMicrons converts a visual angle to a retinal blur size.
func DegreesToMicrons(deg float64) float64 { return deg * EyeDegreeMicrons }

// BlurRadiusPixels converts a blur radius in degrees of visual angle to
// screen pixels for a camera with the given vertical field of view (degrees)
// rendering resHeight rows.
func BlurRadiusPixels(radiusDeg, fovyDeg float64, resHeight int) float64 {
	if fovyDeg <= 0 {
		return 0
	}
	return radiusDeg / fovyDeg * float64(resHeight)
}

// HorizontalFov returns the horizontal field of view (degrees) matching a
// vertical field of view and an aspect ratio.
func HorizontalFov(fovyDeg float64, width, height int) float64 {
	if height == 0 {
		return 0
	}
	aspect := float64(width) / float64(height)
	half := math.Atan(math.Tan(Radians(fovyDeg)/2) * aspect)
	return Degrees(2 * half)
}

// PixelAngles returns the horizontal and vertical incident angles, in
// degrees, of the ray through pixel (x, y) of a pinhole camera. Pixel centres
// are at +0.5; angles are 0 at the image centre, positive to the right and
// towards the top of the image.
func PixelAngles(x, y, width, height int, fovyDeg float64) (float64, float64) {
	tanHalf := math.Tan(Radians(fovyDeg) / 2)
	aspect := float64(width) / float64(height)
	ndcX := (2*(float64(x)+0.5)/float64(width) - 1) * tanHalf * aspect
	ndcY := (1 - 2*(float64(y)+0.5)/float64(height)) * tanHalf
	return Degrees(math.Atan(ndcX)), Degrees(math.Atan(ndcY))
}
