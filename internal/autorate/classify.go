package autorate

import "github.com/galpt/wanctl/internal/config"

// classifyDownload runs one tick of the four-state asymmetric-hysteresis
// machine (§4.1 step 5). Upgrade (toward worse) fires after nUp
// consecutive samples at or above the next-worse threshold; downgrade
// (toward better) fires after nDown consecutive samples below the
// current state's entry threshold. Transitions move exactly one level.
func classifyDownload(side DownloadSide, deltaMs float64, th config.ThresholdsConfig) DownloadSide {
	nUp, nDown := th.UpSamplesRequired, th.DownSamplesRequired

	switch side.CurrentState {
	case Green:
		if deltaMs >= th.YellowMs {
			side.GreenStreak = 0
			side.RedStreak++
			if side.RedStreak >= nUp {
				side.CurrentState = Yellow
				side.RedStreak = 0
			}
		} else {
			side.RedStreak = 0
		}
	case Yellow:
		switch {
		case deltaMs >= th.SoftRedMs:
			side.GreenStreak = 0
			side.RedStreak++
			if side.RedStreak >= nUp {
				side.CurrentState = SoftRed
				side.RedStreak = 0
			}
		case deltaMs < th.YellowMs:
			side.RedStreak = 0
			side.GreenStreak++
			if side.GreenStreak >= nDown {
				side.CurrentState = Green
				side.GreenStreak = 0
			}
		default:
			side.RedStreak = 0
			side.GreenStreak = 0
		}
	case SoftRed:
		switch {
		case deltaMs >= th.RedMs:
			side.GreenStreak = 0
			side.SoftRedStreak++
			if side.SoftRedStreak >= nUp {
				side.CurrentState = Red
				side.SoftRedStreak = 0
			}
		case deltaMs < th.SoftRedMs:
			side.SoftRedStreak = 0
			side.GreenStreak++
			if side.GreenStreak >= nDown {
				side.CurrentState = Yellow
				side.GreenStreak = 0
			}
		default:
			side.SoftRedStreak = 0
			side.GreenStreak = 0
		}
	case Red:
		if deltaMs < th.RedMs {
			side.GreenStreak++
			if side.GreenStreak >= nDown {
				side.CurrentState = SoftRed
				side.GreenStreak = 0
			}
		} else {
			side.GreenStreak = 0
		}
	}
	return side
}

// classifyUpload runs the three-state analogue (GREEN/YELLOW/RED) of
// classifyDownload (§4.1 step 6), same asymmetric-hysteresis mechanism.
func classifyUpload(side UploadSide, deltaMs float64, th config.ThresholdsConfig) UploadSide {
	nUp, nDown := th.UpSamplesRequired, th.DownSamplesRequired

	switch side.CurrentState {
	case UploadGreen:
		if deltaMs >= th.UploadYellowMs {
			side.GreenStreak = 0
			side.RedStreak++
			if side.RedStreak >= nUp {
				side.CurrentState = UploadYellow
				side.RedStreak = 0
			}
		} else {
			side.RedStreak = 0
		}
	case UploadYellow:
		switch {
		case deltaMs >= th.UploadRedMs:
			side.GreenStreak = 0
			side.RedStreak++
			if side.RedStreak >= nUp {
				side.CurrentState = UploadRed
				side.RedStreak = 0
			}
		case deltaMs < th.UploadYellowMs:
			side.RedStreak = 0
			side.GreenStreak++
			if side.GreenStreak >= nDown {
				side.CurrentState = UploadGreen
				side.GreenStreak = 0
			}
		default:
			side.RedStreak = 0
			side.GreenStreak = 0
		}
	case UploadRed:
		if deltaMs < th.UploadRedMs {
			side.GreenStreak++
			if side.GreenStreak >= nDown {
				side.CurrentState = UploadYellow
				side.GreenStreak = 0
			}
		} else {
			side.GreenStreak = 0
		}
	}
	return side
}

// downloadFloor returns the configured rate floor for state s, clamped to
// [min,max] (§4.1 step 7).
func downloadFloor(dl config.DirectionConfig, s DownloadState) int64 {
	var floor int64
	switch s {
	case Green:
		floor = dl.Floors.Green
	case Yellow:
		floor = dl.Floors.Yellow
	case SoftRed:
		floor = dl.Floors.SoftRed
	case Red:
		floor = dl.Floors.Red
	}
	return clampBps(floor, dl.MinCapacityBps, dl.MaxCapacityBps)
}

// uploadFloor is the upload analogue of downloadFloor.
func uploadFloor(ul config.DirectionConfig, s UploadState) int64 {
	var floor int64
	switch s {
	case UploadGreen:
		floor = ul.Floors.Green
	case UploadYellow:
		floor = ul.Floors.Yellow
	case UploadRed:
		floor = ul.Floors.Red
	}
	return clampBps(floor, ul.MinCapacityBps, ul.MaxCapacityBps)
}

func clampBps(v, min, max int64) int64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
