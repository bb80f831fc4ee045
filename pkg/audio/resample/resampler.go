// ABOUTME: Simple linear resampler for converting audio sample rates
// ABOUTME: Used to bring decoded clip sources to the transport's sample rate
package resample

// Resampler performs linear interpolation to convert between sample rates
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	ratio      float64
	position   float64
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) *Resampler {
	if channels <= 0 {
		channels = 1
	}
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		ratio:      float64(inputRate) / float64(outputRate),
	}
}

// Resample converts input samples to output sample rate using linear interpolation
// input: interleaved samples at inputRate
// output: interleaved samples at outputRate
func (r *Resampler) Resample(input []float32, output []float32) int {
	if len(input) == 0 {
		return 0
	}

	inputFrames := len(input) / r.channels
	outputFrames := len(output) / r.channels

	outIdx := 0

	for outIdx < outputFrames {
		inputIdx := int(r.position)

		// Need the following frame to interpolate against
		if inputIdx >= inputFrames-1 {
			break
		}

		frac := float32(r.position - float64(inputIdx))

		for ch := 0; ch < r.channels; ch++ {
			s1 := input[inputIdx*r.channels+ch]
			s2 := input[(inputIdx+1)*r.channels+ch]
			output[outIdx*r.channels+ch] = s1*(1-frac) + s2*frac
		}

		outIdx++
		r.position += r.ratio
	}

	// Keep the fractional part for the next chunk
	r.position -= float64(int(r.position))

	return outIdx * r.channels
}

// Reset resets the resampler state
func (r *Resampler) Reset() {
	r.position = 0.0
}

// OutputSamplesNeeded calculates how many output samples will be produced from input samples
func (r *Resampler) OutputSamplesNeeded(inputSamples int) int {
	inputFrames := inputSamples / r.channels
	outputFrames := int(float64(inputFrames) / r.ratio)
	return outputFrames * r.channels
}

// Convert resamples a complete buffer in one pass. It returns the input
// unchanged when the rates already match.
func Convert(input []float32, inputRate, outputRate, channels int) []float32 {
	if inputRate == outputRate || inputRate <= 0 || outputRate <= 0 {
		return input
	}

	r := New(inputRate, outputRate, channels)
	output := make([]float32, r.OutputSamplesNeeded(len(input)))
	n := r.Resample(input, output)
	return output[:n]
}
