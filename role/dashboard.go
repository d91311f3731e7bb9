package role

// Home is the public landing path used for roles without a dashboard.
const Home = "/"

var dashboards = [roleCount]string{
	Unknown: Home,
	Student: "/dashboard/user",
	Mentor:  "/dashboard/mentor",
	Admin:   "/dashboard/admin",
}

// Dashboard maps a role to its canonical landing path.
//
//	Student -> /dashboard/user
//	Mentor  -> /dashboard/mentor
//	Admin   -> /dashboard/admin
//	other   -> /
func Dashboard(r Role) string {
	if !r.Valid() {
		return Home
	}
	return dashboards[r]
}
