package handler

// Route pattern constants for chi router registration.
const (
	// RouteRoot is the root path.
	RouteRoot = "/"
	// RouteRegister is the registration route.
	RouteRegister = "/register"
	// RouteLogin is the login route.
	RouteLogin = "/login"
	// RouteLogout is the logout route.
	RouteLogout = "/logout"
	// RoutePost is the post view/comment route pattern.
	RoutePost = "/post/{id}"
	// RouteAbout is the about page route.
	RouteAbout = "/about"
	// RouteContact is the contact page route.
	RouteContact = "/contact"
	// RouteNewPost is the admin post creation route.
	RouteNewPost = "/new-post"
	// RouteEditPost is the admin post edit route pattern.
	RouteEditPost = "/edit-post/{id}"
	// RouteDeletePost is the admin post delete route pattern.
	RouteDeletePost = "/delete/{id}"
)

// SessionKeyUserID is the session key for storing the authenticated user ID.
const SessionKeyUserID = "user_id"
