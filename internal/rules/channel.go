package rules

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/tfmm/internal/fixedpoint"
	"github.com/elys-network/tfmm/internal/types"
)

const (
	ChannelFollowingName = "channel_following"
	PowerChannelName     = "power_channel"
)

// ChannelFollowing mean-reverts inside a Gaussian channel of the given width and follows
// the trend outside it:
//
//	envelope = exp(-g^2 / (2 width^2))
//	channel  = -amplitude * (g / width) * envelope
//	trend    = (1 - envelope) * sign(g) * |g / (2 width)|^exponent
//
// where g is the gradient normalized by the previous moving average.
type ChannelFollowing struct{}

func (ChannelFollowing) Name() string { return ChannelFollowingName }

func (ChannelFollowing) Needs() Needs {
	return Needs{Gradient: true, PrevMovingAverage: true}
}

func (ChannelFollowing) ValidateParameters(params types.RuleParameters, numAssets int) bool {
	return positiveRow(params, ParamKappa, numAssets) &&
		positiveRow(params, ParamWidth, numAssets) &&
		positiveRow(params, ParamAmplitude, numAssets) &&
		exponentRow(params, ParamExponents, numAssets) &&
		validUseRawPrice(params)
}

func (ChannelFollowing) ComputeRawProposal(in ProposalInput) ([]sdkmath.LegacyDec, error) {
	g, err := momentumSignal(in)
	if err != nil {
		return nil, err
	}
	n := in.NumAssets()
	width, err := in.Parameters.Vector(ParamWidth, n)
	if err != nil {
		return nil, err
	}
	amplitude, err := in.Parameters.Vector(ParamAmplitude, n)
	if err != nil {
		return nil, err
	}
	exponents, err := in.Parameters.Vector(ParamExponents, n)
	if err != nil {
		return nil, err
	}

	signal := make([]sdkmath.LegacyDec, n)
	for i := 0; i < n; i++ {
		s, err := channelSignal(g[i], width[i], amplitude[i], exponents[i])
		if err != nil {
			return nil, fmt.Errorf("asset %d: %w", i, err)
		}
		signal[i] = s
	}
	return applySignal(in.PrevWeights, signal, in.Parameters, 1)
}

func channelSignal(g, width, amplitude, exponent sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
	widthSq, err := fixedpoint.MulChecked(width, width)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	twoWidthSq := widthSq.MulInt64(2)
	gSq, err := fixedpoint.MulChecked(g, g)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	ratio, err := fixedpoint.Quo(gSq, twoWidthSq)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	envelope, err := fixedpoint.Exp(ratio.Neg())
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}

	scaled, err := fixedpoint.Quo(g, width)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	amplified, err := fixedpoint.MulChecked(amplitude, scaled)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	channel := fixedpoint.Mul(amplified, envelope).Neg()

	halfScaled, err := fixedpoint.Quo(g.Abs(), width.MulInt64(2))
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	power, err := fixedpoint.Pow(halfScaled, exponent)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	trend := fixedpoint.Mul(fixedpoint.One().Sub(envelope), power).MulInt64(int64(fixedpoint.Sign(g)))

	return channel.Add(trend), nil
}

// PowerChannel raises the normalized gradient to the power q while keeping its sign, which
// damps small moves and amplifies large ones when q > 1.
type PowerChannel struct{}

func (PowerChannel) Name() string { return PowerChannelName }

func (PowerChannel) Needs() Needs {
	return Needs{Gradient: true, PrevMovingAverage: true}
}

func (PowerChannel) ValidateParameters(params types.RuleParameters, numAssets int) bool {
	return positiveRow(params, ParamKappa, numAssets) &&
		exponentRow(params, ParamPowerQ, numAssets) &&
		validUseRawPrice(params)
}

func (PowerChannel) ComputeRawProposal(in ProposalInput) ([]sdkmath.LegacyDec, error) {
	g, err := momentumSignal(in)
	if err != nil {
		return nil, err
	}
	q, err := in.Parameters.Vector(ParamPowerQ, in.NumAssets())
	if err != nil {
		return nil, err
	}

	signal := make([]sdkmath.LegacyDec, len(g))
	for i := range g {
		p, err := fixedpoint.Pow(g[i].Abs(), q[i])
		if err != nil {
			return nil, fmt.Errorf("asset %d: %w", i, err)
		}
		signal[i] = p.MulInt64(int64(fixedpoint.Sign(g[i])))
	}
	return applySignal(in.PrevWeights, signal, in.Parameters, 1)
}
