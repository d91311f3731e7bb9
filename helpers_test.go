package portalguard

import "github.com/uimp/portalguard/jwt"

func jwtSubject(uid, roleName, sid string) jwt.Subject {
	return jwt.Subject{UserID: uid, Role: roleName, SessionID: sid}
}
