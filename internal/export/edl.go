// Package export renders an analyzed or optimized timeline as a CMX-style
// edit decision list for handoff to an NLE.
package export

import (
	"fmt"
	"math"
	"strings"

	"github.com/flowlens/flowlens-agent/internal/timeline"
)

const maxClipNameLen = 64

// GenerateEDL renders the timeline's clips as sequential EDL events.
// Source in/out come from the clip trim points when present, otherwise
// from the clip's own extent.
func GenerateEDL(tl *timeline.Timeline, title string) string {
	fps := int(math.Round(tl.FrameRate))
	if fps <= 0 {
		fps = 30
	}

	isDropFrame := math.Abs(tl.FrameRate-29.97) < 0.01 || math.Abs(tl.FrameRate-59.94) < 0.01

	lines := []string{fmt.Sprintf("TITLE: %s", SanitizeName(title, maxClipNameLen))}
	if isDropFrame {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	recordOffsetMs := 0
	for i, clip := range tl.Clips {
		srcInMs, srcOutMs := sourceRangeMs(clip)
		durationMs := srcOutMs - srcInMs

		srcIn := msToTimecode(srcInMs, fps)
		srcOut := msToTimecode(srcOutMs, fps)
		recIn := msToTimecode(recordOffsetMs, fps)
		recOut := msToTimecode(recordOffsetMs+durationMs, fps)

		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", i+1, "AX", "V", srcIn, srcOut, recIn, recOut),
			fmt.Sprintf("* FROM CLIP NAME:  %s", SanitizeName(clipName(clip, i), maxClipNameLen)),
		)
		if clip.AssetPath != "" {
			lines = append(lines, fmt.Sprintf("* MEDIA PATH:  %s", clip.AssetPath))
		}
		if clip.TransitionOut != nil {
			lines = append(lines, fmt.Sprintf("* TRANSITION:  %s %.1fs",
				strings.ToUpper(clip.TransitionOut.Type), clip.TransitionOut.Duration))
		}

		recordOffsetMs += durationMs
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

func sourceRangeMs(clip timeline.Clip) (int, int) {
	in := 0.0
	if clip.InPoint != nil {
		in = *clip.InPoint
	}
	out := in + clip.Duration
	if clip.OutPoint != nil && *clip.OutPoint > in {
		out = *clip.OutPoint
	}
	return int(math.Round(in * 1000)), int(math.Round(out * 1000))
}

func clipName(clip timeline.Clip, index int) string {
	if name, ok := clip.Metadata["name"].(string); ok && name != "" {
		return name
	}
	if clip.AssetID != "" {
		return clip.AssetID
	}
	return fmt.Sprintf("Clip %d", index+1)
}

func msToTimecode(ms int, fps int) string {
	totalFrames := int(math.Round(float64(ms) * float64(fps) / 1000.0))
	frames := totalFrames % fps
	totalSeconds := totalFrames / fps
	seconds := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, seconds, frames)
}
