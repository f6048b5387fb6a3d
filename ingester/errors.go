package ingester

import "errors"

var (
	// ErrInvalidSignature covers any of the three signature-recovery
	// steps failing or disagreeing.
	ErrInvalidSignature = errors.New("ingester: invalid signature")

	// ErrChainIDMismatch is returned when the request's chain_id does not
	// match our configured chain.
	ErrChainIDMismatch = errors.New("ingester: chain id mismatch")

	// ErrUnknownTokenNetwork is returned when token_network is not a
	// network this service tracks.
	ErrUnknownTokenNetwork = errors.New("ingester: unknown token network")

	// ErrUnknownChannel is returned when the referenced channel has never
	// been observed on-chain.
	ErrUnknownChannel = errors.New("ingester: unknown channel")

	// ErrChannelNotOpen is returned when the referenced channel is not in
	// the OPENED state.
	ErrChannelNotOpen = errors.New("ingester: channel not open")

	// ErrParticipantMismatch is returned when the recovered signer pair
	// does not equal the channel's participant pair.
	ErrParticipantMismatch = errors.New("ingester: participant mismatch")
)
