package common

// DefaultCreditBalance is granted to every user on first sighting.
const DefaultCreditBalance = 10

// Profile defaults applied when the identity provider omits a field.
const (
	DefaultFirstName = "User"
	DefaultLastName  = "User"
	DefaultPhotoURL  = "https://via.placeholder.com/150"
)

// AuthorizationHeaderName carries the bearer session token on user requests.
const AuthorizationHeaderName = "Authorization"
