package core

import (
	"strings"
)

// ResolveServiceNames guesses the services a changed configuration file
// belongs to. Files follow {service}-{profile}.{ext} or {service}.{ext}, where
// "application" addresses every service. Every separator is tried, so
// hyphenated names and profiles produce several candidates.
func ResolveServiceNames(path string) *ServiceNameSet {
	services := NewServiceNameSet()
	stem := pathStem(path)
	if stem == "" {
		return services
	}

	offset := 0
	for {
		index := strings.Index(stem[offset:], ProfileSeparator)
		if index < 0 {
			break
		}
		index += offset
		name := stem[:index]
		profile := stem[index+len(ProfileSeparator):]
		if name == ReservedApplicationName {
			services.Add(WildcardServiceName + ProfileQualifier + profile)
		} else if !strings.HasPrefix(name, ReservedApplicationName) {
			services.Add(name + ProfileQualifier + profile)
		}
		offset = index + len(ProfileSeparator)
	}

	if stem == ReservedApplicationName {
		services.Add(WildcardServiceName)
	} else if !strings.HasPrefix(stem, ReservedApplicationName) {
		services.Add(stem)
	}
	return services
}

// AccumulateServiceNames resolves every path in order into one set.
func AccumulateServiceNames(paths []string) *ServiceNameSet {
	services := NewServiceNameSet()
	for _, path := range paths {
		services.AddAll(ResolveServiceNames(path))
	}
	return services
}

// pathStem strips the directory and the extension from a slash separated path.
func pathStem(path string) string {
	filename := path
	if index := strings.LastIndex(filename, "/"); index >= 0 {
		filename = filename[index+1:]
	}
	if index := strings.LastIndex(filename, "."); index >= 0 {
		filename = filename[:index]
	}
	return filename
}
