package api

const (
	// PingEndpoint is the endpoint for checking the API status
	PingEndpoint = "/ping"
	// ProofsEndpoint is the endpoint for relaying a proof to the peer, which
	// records it in its proof cache
	ProofsEndpoint = "/proofs"
	// VerifyProofEndpoint is the endpoint for verifying a proof against a
	// message and an epoch without recording it
	VerifyProofEndpoint = "/proofs/verify"
	// RegistryRootEndpoint is the endpoint to get the membership tree root
	RegistryRootEndpoint = "/registry/root"
	// RegistryCommitmentsEndpoint is the endpoint to get every rate
	// commitment of the membership tree
	RegistryCommitmentsEndpoint = "/registry/commitments"
	// RegistryMemberEndpoint is the endpoint to check if an identity
	// commitment is a member of the group
	IdentityCommitmentURLParam = "identityCommitment"
	RegistryMemberEndpoint     = "/registry/members/{" + IdentityCommitmentURLParam + "}"
)
