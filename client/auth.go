package client

import (
	"fmt"
	"strconv"

	gojwt "github.com/golang-jwt/jwt/v5"
)

// ClientAuth identifies this device to the api and the realtime channel.
type ClientAuth struct {
	AccessToken string
	InstanceId  Id
	AppVersion  string
}

func NewClientAuth(accessToken string) *ClientAuth {
	return &ClientAuth{
		AccessToken: accessToken,
		InstanceId:  NewId(),
	}
}

// UserId reads the local user id out of the access token without verifying
// the signature. Verification is the server's job. The id is only used to
// recognize our own realtime echoes.
func (self *ClientAuth) UserId() (EntityId, error) {
	parser := gojwt.NewParser()
	token, _, err := parser.ParseUnverified(self.AccessToken, gojwt.MapClaims{})
	if err != nil {
		return 0, err
	}

	claims := token.Claims.(gojwt.MapClaims)

	for _, key := range []string{"user_id", "sub"} {
		claim, ok := claims[key]
		if !ok {
			continue
		}
		switch v := claim.(type) {
		case float64:
			return EntityId(v), nil
		case string:
			if userId, err := strconv.ParseInt(v, 10, 64); err == nil {
				return userId, nil
			}
		}
	}

	return 0, fmt.Errorf("no user id claim in access token")
}
