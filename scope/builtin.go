package scope

import "time"

// Names of the built-in classes.
const (
	ClassRoot      = ".root"
	ClassPage      = "page"
	ClassWaitBase  = "wait.base"
	ClassAngular   = "app.angular"
	ClassAngularJS = "app.angularjs"
)

// Named timeouts every class inherits.
const (
	TimeoutShort  = "short"
	TimeoutMedium = "medium"
	TimeoutLong   = "long"
)

func builtinClasses() []ClassDef {
	return []ClassDef{
		{
			Name: ClassRoot,
			Component: []Descriptor{
				{Kind: DescAction, Name: "click", Action: Click},
				{Kind: DescAction, Name: "clear", Action: Clear},
				{Kind: DescAction, Name: "send_keys", Action: SendKeys},
				{Kind: DescAction, Name: "submit", Action: Submit},
			},
			Timeouts: map[string]time.Duration{
				TimeoutShort:  5 * time.Second,
				TimeoutMedium: 20 * time.Second,
				TimeoutLong:   60 * time.Second,
			},
		},
		{
			Name:   ClassPage,
			Parent: ClassRoot,
			Page: []Descriptor{
				{Kind: DescScript, Name: "title", Script: "return document.title;"},
				{Kind: DescScript, Name: "url", Script: "return window.location ? window.location.href : null;"},
			},
		},
		{
			Name:   ClassWaitBase,
			Parent: ClassPage,
			Wait:   []string{`return document.readyState == "complete";`},
		},
		{
			Name:   ClassAngular,
			Parent: ClassWaitBase,
			Wait: []string{`
if (typeof window.getAllAngularTestabilities !== "function") return true;
return window.getAllAngularTestabilities().every(function (t) { return t.isStable(); });`},
		},
		{
			Name:   ClassAngularJS,
			Parent: ClassWaitBase,
			Wait: []string{`
var ng = window.angular;
if (!ng || !document.querySelector) return true;
var el = document.querySelector("[ng-app],[data-ng-app]");
if (!el) return true;
var inj = ng.element(el).injector();
return !inj || inj.get("$http").pendingRequests.length === 0;`},
		},
	}
}
